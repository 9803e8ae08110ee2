package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/leanreview/internal/config"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"google.golang.org/genai"
)

func newTestReviewer(fn GenerateFunc) *GeminiReviewer {
	return &GeminiReviewer{
		model:           "gemini-3-pro-preview",
		temperature:     0.3,
		maxOutputTokens: 1024,
		generateFn:      fn,
	}
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: parts}},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1200,
			CandidatesTokenCount: 300,
			TotalTokenCount:      1500,
		},
	}
}

func TestNewGeminiReviewer_MissingKey(t *testing.T) {
	cfg := config.Default()

	_, err := NewGeminiReviewer(context.Background(), cfg)

	assert.ErrorIs(t, err, domainErrors.ErrAPIKeyMissing)
}

func TestGeminiReviewer_Review(t *testing.T) {
	t.Run("Success - thoughts are skipped", func(t *testing.T) {
		var gotPrompt, gotModel string
		r := newTestReviewer(func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
			gotModel, gotPrompt = model, prompt
			return textResponse(
				&genai.Part{Text: "Let me think about the bound...", Thought: true},
				&genai.Part{Text: "## Verdict\n"},
				&genai.Part{Text: "The formalization is correct."},
			), nil
		})

		res, err := r.Review(context.Background(), "review this")

		require.NoError(t, err)
		assert.Equal(t, "review this", gotPrompt)
		assert.Equal(t, "gemini-3-pro-preview", gotModel)
		assert.Equal(t, "## Verdict\nThe formalization is correct.", res.Text)
		assert.Equal(t, "gemini-3-pro-preview", res.Model)
		require.NotNil(t, res.Usage)
		assert.Equal(t, 1500, res.Usage.TotalTokens)
		assert.Equal(t, "gemini-3-pro-preview", res.Usage.Model)
	})

	t.Run("Error - empty output", func(t *testing.T) {
		r := newTestReviewer(func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
			resp := textResponse(&genai.Part{Text: "  "})
			resp.Candidates[0].FinishReason = genai.FinishReasonMaxTokens
			return resp, nil
		})

		_, err := r.Review(context.Background(), "p")

		require.ErrorIs(t, err, domainErrors.ErrInvalidAIOutput)
		var appErr *domainErrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "MAX_TOKENS", appErr.Context["finish_reason"])
	})

	t.Run("Error - generation failure is returned", func(t *testing.T) {
		r := newTestReviewer(func(ctx context.Context, model, prompt string) (*genai.GenerateContentResponse, error) {
			return nil, domainErrors.ErrGeminiQuotaExceeded
		})

		_, err := r.Review(context.Background(), "p")

		assert.ErrorIs(t, err, domainErrors.ErrGeminiQuotaExceeded)
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"Error 429, Message: Resource has been exhausted (e.g. check quota).", domainErrors.ErrGeminiQuotaExceeded},
		{"rpc error: RESOURCE_EXHAUSTED", domainErrors.ErrGeminiQuotaExceeded},
		{"Error 400, Message: API key not valid. Please pass a valid API key., Status: INVALID_ARGUMENT", domainErrors.ErrGeminiAPIKeyInvalid},
		{"Error 500, Message: internal", domainErrors.ErrAIGeneration},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classifyError(errors.New(tt.msg))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractUsage(t *testing.T) {
	t.Run("nil response", func(t *testing.T) {
		assert.Nil(t, extractUsage(nil))
	})

	t.Run("nil UsageMetadata", func(t *testing.T) {
		assert.Nil(t, extractUsage(&genai.GenerateContentResponse{}))
	})

	t.Run("valid UsageMetadata", func(t *testing.T) {
		usage := extractUsage(textResponse())
		require.NotNil(t, usage)
		assert.Equal(t, 1200, usage.InputTokens)
		assert.Equal(t, 300, usage.OutputTokens)
		assert.Equal(t, 1500, usage.TotalTokens)
	})
}

func TestGetGenerateConfig(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		cfg := GetGenerateConfig("gemini-2.5-pro", 0.3, 2048)
		assert.Equal(t, float32(0.3), *cfg.Temperature)
		assert.Equal(t, int32(2048), cfg.MaxOutputTokens)
		require.NotNil(t, cfg.SystemInstruction)
		assert.Contains(t, cfg.SystemInstruction.Parts[0].Text, "formal verification")
		assert.Nil(t, cfg.ThinkingConfig)
	})

	t.Run("Thinking Mode for gemini-3", func(t *testing.T) {
		cfg := GetGenerateConfig("gemini-3-pro-preview", 0.3, 2048)
		require.NotNil(t, cfg.ThinkingConfig)
		assert.True(t, cfg.ThinkingConfig.IncludeThoughts)
	})
}

func TestGeminiReviewer_Names(t *testing.T) {
	r := newTestReviewer(nil)
	assert.Equal(t, "gemini", r.GetProviderName())
	assert.Equal(t, "gemini-3-pro-preview", r.GetModelName())
}
