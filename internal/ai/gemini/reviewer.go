package gemini

import (
	"context"
	"strings"
	"time"

	"github.com/thomas-vilte/leanreview/internal/ai"
	"github.com/thomas-vilte/leanreview/internal/config"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
	"google.golang.org/genai"
)

var (
	_ ai.Reviewer     = (*GeminiReviewer)(nil)
	_ ai.TokenCounter = (*GeminiReviewer)(nil)
)

// GenerateFunc performs the model call. Replaced in tests.
type GenerateFunc func(ctx context.Context, model string, prompt string) (*genai.GenerateContentResponse, error)

type GeminiReviewer struct {
	Client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	generateFn      GenerateFunc
}

func NewGeminiReviewer(ctx context.Context, cfg *config.Config) (*GeminiReviewer, error) {
	if cfg.AI.APIKey == "" {
		return nil, domainErrors.ErrAPIKeyMissing
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.AI.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "invalid") ||
			strings.Contains(errMsg, "unauthorized") ||
			strings.Contains(errMsg, "api key") ||
			strings.Contains(errMsg, "authentication") {
			return nil, domainErrors.ErrGeminiAPIKeyInvalid.WithError(err)
		}
		return nil, domainErrors.NewAppError(domainErrors.TypeAI, "error creating AI client", err)
	}

	model := string(cfg.AI.Model)
	if model == "" {
		model = string(config.DefaultModel)
	}

	r := &GeminiReviewer{
		Client:          client,
		model:           model,
		temperature:     cfg.AI.Temperature,
		maxOutputTokens: cfg.AI.MaxOutputTokens,
	}
	r.generateFn = r.defaultGenerate
	return r, nil
}

func (r *GeminiReviewer) defaultGenerate(ctx context.Context, model string, prompt string) (*genai.GenerateContentResponse, error) {
	genConfig := GetGenerateConfig(model, r.temperature, r.maxOutputTokens)

	resp, err := r.Client.Models.GenerateContent(ctx, model, genai.Text(prompt), genConfig)
	if err != nil {
		logger.FromContext(ctx).Error("gemini API call failed",
			"error", err,
			"model", model)
		return nil, classifyError(err)
	}
	return resp, nil
}

// Review sends the prompt and returns the concatenated answer text.
func (r *GeminiReviewer) Review(ctx context.Context, prompt string) (models.ReviewResult, error) {
	log := logger.FromContext(ctx)

	log.Info("requesting review from gemini",
		"model", r.model,
		"prompt_length", len(prompt))

	start := time.Now()
	resp, err := r.generateFn(ctx, r.model, prompt)
	if err != nil {
		return models.ReviewResult{}, err
	}

	text := strings.TrimSpace(formatResponse(resp))
	if text == "" {
		appErr := domainErrors.ErrInvalidAIOutput.
			WithContext("reason", "empty response from AI").
			WithContext("operation", "review")
		if reason := finishReason(resp); reason != "" {
			appErr = appErr.WithContext("finish_reason", reason)
		}
		return models.ReviewResult{}, appErr
	}

	usage := extractUsage(resp)
	if usage != nil {
		usage.Model = r.model
		usage.DurationMs = time.Since(start).Milliseconds()
	}

	log.Info("review generated",
		"model", r.model,
		"length", len(text),
		"duration_ms", time.Since(start).Milliseconds())

	return models.ReviewResult{
		Text:  text,
		Model: r.model,
		Usage: usage,
	}, nil
}

func (r *GeminiReviewer) CountTokens(ctx context.Context, prompt string) (int, error) {
	resp, err := r.Client.Models.CountTokens(ctx, r.model, genai.Text(prompt), nil)
	if err != nil {
		return 0, classifyError(err)
	}
	return int(resp.TotalTokens), nil
}

func (r *GeminiReviewer) GetModelName() string {
	return r.model
}

func (r *GeminiReviewer) GetProviderName() string {
	return "gemini"
}
