package gemini

import (
	"strings"

	"github.com/thomas-vilte/leanreview/internal/ai"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/models"
	"google.golang.org/genai"
)

// extractUsage extracts usage metadata from the Gemini response
func extractUsage(resp *genai.GenerateContentResponse) *models.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	return &models.TokenUsage{
		InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
		OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
	}
}

// GetGenerateConfig builds the request configuration. Thought summaries are
// requested for gemini-3 models and stripped from the answer.
func GetGenerateConfig(modelName string, temperature float32, maxOutputTokens int32) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: ai.ReviewSystemInstruction}},
		},
		Temperature:     float32Ptr(temperature),
		MaxOutputTokens: maxOutputTokens,
	}

	if strings.HasPrefix(modelName, "gemini-3") {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
		}
	}

	return cfg
}

func float32Ptr(f float32) *float32 {
	return &f
}

// formatResponse joins the text parts of every candidate, skipping thoughts.
func formatResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	var formattedContent strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			formattedContent.WriteString(part.Text)
		}
	}
	return formattedContent.String()
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

func classifyError(err error) error {
	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "quota") ||
		strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "resource exhausted") ||
		strings.Contains(errMsg, "resource_exhausted") {
		return domainErrors.ErrGeminiQuotaExceeded.WithError(err)
	}

	if strings.Contains(errMsg, "api key") ||
		strings.Contains(errMsg, "api_key_invalid") ||
		strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "permission_denied") {
		return domainErrors.ErrGeminiAPIKeyInvalid.WithError(err)
	}

	return domainErrors.ErrAIGeneration.WithError(err)
}
