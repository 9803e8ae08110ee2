package vcs

import (
	"context"

	"github.com/thomas-vilte/leanreview/internal/models"
)

// VCSClient is the subset of the code-hosting API a review run needs.
type VCSClient interface {
	// GetPR gets the PR metadata and its unified diff.
	GetPR(ctx context.Context, prNumber int) (models.PRData, error)
	// ListChangedFiles lists the paths touched by the PR.
	ListChangedFiles(ctx context.Context, prNumber int) ([]string, error)
	// CreateComment posts body as a single comment, without retrying.
	CreateComment(ctx context.Context, prNumber int, body string) (models.PostedComment, error)
	// PostReview posts body as a comment, retrying transient failures.
	PostReview(ctx context.Context, prNumber int, body string) (models.PostedComment, error)
}
