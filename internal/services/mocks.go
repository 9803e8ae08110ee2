package services

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/thomas-vilte/leanreview/internal/impact"
	"github.com/thomas-vilte/leanreview/internal/models"
)

type (
	MockVCSClient struct {
		mock.Mock
	}

	MockReviewer struct {
		mock.Mock
	}

	MockImpactResolver struct {
		mock.Mock
	}

	MockReferenceFetcher struct {
		mock.Mock
	}
)

func (m *MockVCSClient) GetPR(ctx context.Context, prNumber int) (models.PRData, error) {
	args := m.Called(ctx, prNumber)
	return args.Get(0).(models.PRData), args.Error(1)
}

func (m *MockVCSClient) ListChangedFiles(ctx context.Context, prNumber int) ([]string, error) {
	args := m.Called(ctx, prNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockVCSClient) CreateComment(ctx context.Context, prNumber int, body string) (models.PostedComment, error) {
	args := m.Called(ctx, prNumber, body)
	return args.Get(0).(models.PostedComment), args.Error(1)
}

func (m *MockVCSClient) PostReview(ctx context.Context, prNumber int, body string) (models.PostedComment, error) {
	args := m.Called(ctx, prNumber, body)
	return args.Get(0).(models.PostedComment), args.Error(1)
}

func (m *MockReviewer) Review(ctx context.Context, prompt string) (models.ReviewResult, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(models.ReviewResult), args.Error(1)
}

func (m *MockReviewer) GetModelName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockReviewer) GetProviderName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockImpactResolver) Resolve(ctx context.Context, changeSet models.ChangeSet) impact.Result {
	args := m.Called(ctx, changeSet)
	return args.Get(0).(impact.Result)
}

func (m *MockReferenceFetcher) FetchAll(ctx context.Context, urls []string) []models.Reference {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.Reference)
}
