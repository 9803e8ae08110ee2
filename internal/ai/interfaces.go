package ai

import (
	"context"

	"github.com/thomas-vilte/leanreview/internal/models"
)

// Reviewer produces a review for a fully rendered prompt.
type Reviewer interface {
	// Review sends the prompt to the model and returns its answer.
	// Any failure is fatal for the run.
	Review(ctx context.Context, prompt string) (models.ReviewResult, error)

	// GetModelName returns the name of the current model (e.g.: "gemini-3-pro-preview")
	GetModelName() string

	// GetProviderName returns the name of the provider (e.g.: "gemini")
	GetProviderName() string
}

// TokenCounter is implemented by reviewers that can size a prompt before
// sending it.
type TokenCounter interface {
	CountTokens(ctx context.Context, content string) (int, error)
}
