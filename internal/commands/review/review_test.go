package review

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/thomas-vilte/leanreview/internal/config"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/models"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req models.ReviewRequest) (models.ReviewOutcome, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.ReviewOutcome), args.Error(1)
}

func setupReviewTest(t *testing.T) (*MockRunner, *i18n.Translations, *config.Config) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GITHUB_REPOSITORY", "")
	t.Setenv("GEMINI_API_KEY", "")

	translations, err := i18n.NewTranslations("en")
	require.NoError(t, err)

	return new(MockRunner), translations, config.Default()
}

func providerFor(runner Runner, seen **config.Config) ServiceProvider {
	return func(_ context.Context, c *config.Config, _ *i18n.Translations) (Runner, error) {
		if seen != nil {
			*seen = c
		}
		return runner, nil
	}
}

var credentials = []string{
	"--repo", "ArkLib/ArkLib",
	"--github-token", "ghs_test",
	"--gemini-api-key", "gm_test",
}

func TestReviewCommand(t *testing.T) {
	t.Run("should run the review and report the comment URL", func(t *testing.T) {
		// Arrange
		runner, translations, conf := setupReviewTest(t)

		runner.On("Run", mock.Anything, models.ReviewRequest{
			PRNumber:           12,
			ExternalRefs:       []string{"https://eprint.iacr.org/2024/1.pdf", "https://example.com/spec"},
			InternalRefs:       []string{"ArkLib/OracleReduction", "blueprint/src/sumcheck.tex"},
			AdditionalComments: "Focus on the soundness bound",
			DryRun:             false,
		}).Return(models.ReviewOutcome{
			Comment: &models.PostedComment{ID: 1, URL: "https://github.com/ArkLib/ArkLib/pull/12#issuecomment-1"},
		}, nil).Once()

		var seen *config.Config
		cmd := NewReviewCommand(providerFor(runner, &seen), nil).CreateCommand(translations, conf)
		var out bytes.Buffer
		cmd.Writer = &out

		args := append([]string{"review", "--pr-number", "12"}, credentials...)
		args = append(args,
			"--external-refs", "https://eprint.iacr.org/2024/1.pdf, https://example.com/spec",
			"--arklib-refs", "ArkLib/OracleReduction,blueprint/src/sumcheck.tex",
			"--additional-comments", "Focus on the soundness bound",
			"--gemini-model", "gemini-2.5-pro",
			"--post-retries", "5",
		)

		// Act
		err := cmd.Run(context.Background(), args)

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Review posted: https://github.com/ArkLib/ArkLib/pull/12#issuecomment-1")
		require.NotNil(t, seen)
		assert.Equal(t, config.ModelGeminiV25Pro, seen.AI.Model)
		assert.Equal(t, 5, seen.Post.MaxAttempts)
		assert.Equal(t, "ArkLib", seen.Owner())
		runner.AssertExpectations(t)
	})

	t.Run("should print the body on dry run", func(t *testing.T) {
		// Arrange
		runner, translations, conf := setupReviewTest(t)

		runner.On("Run", mock.Anything, mock.MatchedBy(func(req models.ReviewRequest) bool {
			return req.DryRun && req.PRNumber == 3
		})).Return(models.ReviewOutcome{Body: "## review body"}, nil).Once()

		cmd := NewReviewCommand(providerFor(runner, nil), nil).CreateCommand(translations, conf)
		var out bytes.Buffer
		cmd.Writer = &out

		// Act
		err := cmd.Run(context.Background(), append([]string{"review", "-n", "3", "--dry-run"}, credentials...))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "## review body\n", out.String())
	})

	t.Run("should fail validation without a token", func(t *testing.T) {
		// Arrange
		runner, translations, conf := setupReviewTest(t)
		cmd := NewReviewCommand(providerFor(runner, nil), nil).CreateCommand(translations, conf)

		// Act
		err := cmd.Run(context.Background(), []string{"review", "--pr-number", "3", "--repo", "o/r", "--gemini-api-key", "k"})

		// Assert
		assert.ErrorIs(t, err, domainErrors.ErrTokenMissing)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("should detect the repository from the checkout", func(t *testing.T) {
		// Arrange
		runner, translations, conf := setupReviewTest(t)
		runner.On("Run", mock.Anything, mock.Anything).Return(models.ReviewOutcome{Body: "x"}, nil).Once()

		detect := func(context.Context) (string, string, error) { return "Verified-zkEVM", "ArkLib", nil }
		var seen *config.Config
		cmd := NewReviewCommand(providerFor(runner, &seen), detect).CreateCommand(translations, conf)
		cmd.Writer = &bytes.Buffer{}

		// Act
		err := cmd.Run(context.Background(), []string{"review", "--pr-number", "3", "--github-token", "t", "--gemini-api-key", "k"})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Verified-zkEVM/ArkLib", seen.GitHub.Repository)
	})

	t.Run("should propagate pipeline errors", func(t *testing.T) {
		// Arrange
		runner, translations, conf := setupReviewTest(t)
		runner.On("Run", mock.Anything, mock.Anything).
			Return(models.ReviewOutcome{}, domainErrors.ErrCommentPost.WithContext("attempts", 3)).Once()

		cmd := NewReviewCommand(providerFor(runner, nil), nil).CreateCommand(translations, conf)

		// Act
		err := cmd.Run(context.Background(), append([]string{"review", "--pr-number", "3"}, credentials...))

		// Assert
		assert.ErrorIs(t, err, domainErrors.ErrCommentPost)
	})

	t.Run("should fail when the provider fails", func(t *testing.T) {
		// Arrange
		_, translations, conf := setupReviewTest(t)
		provider := func(context.Context, *config.Config, *i18n.Translations) (Runner, error) {
			return nil, errors.New("no client")
		}
		cmd := NewReviewCommand(provider, nil).CreateCommand(translations, conf)

		// Act
		err := cmd.Run(context.Background(), append([]string{"review", "--pr-number", "3"}, credentials...))

		// Assert
		assert.EqualError(t, err, "no client")
	})

	t.Run("should require the PR number", func(t *testing.T) {
		// Arrange
		runner, translations, conf := setupReviewTest(t)
		cmd := NewReviewCommand(providerFor(runner, nil), nil).CreateCommand(translations, conf)

		// Act
		err := cmd.Run(context.Background(), append([]string{"review"}, credentials...))

		// Assert
		assert.Error(t, err)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})
}

func TestApplyFlags_GraphCommand(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		enabled bool
		command string
		args    []string
	}{
		{
			name:    "custom exporter",
			value:   "lake exe graph --to ArkLib {output}",
			enabled: true,
			command: "lake",
			args:    []string{"exe", "graph", "--to", "ArkLib", "{output}"},
		},
		{
			name:    "empty disables",
			value:   "",
			enabled: false,
			command: "lake",
			args:    config.DefaultGraphArgs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner, translations, conf := setupReviewTest(t)
			runner.On("Run", mock.Anything, mock.Anything).Return(models.ReviewOutcome{}, nil).Once()

			var seen *config.Config
			cmd := NewReviewCommand(providerFor(runner, &seen), nil).CreateCommand(translations, conf)
			cmd.Writer = &bytes.Buffer{}

			args := append([]string{"review", "--pr-number", "1", "--graph-command", tt.value, "--source-root", "src"}, credentials...)
			require.NoError(t, cmd.Run(context.Background(), args))

			assert.Equal(t, tt.enabled, seen.Graph.Enabled)
			assert.Equal(t, tt.command, seen.Graph.Command)
			assert.Equal(t, tt.args, seen.Graph.Args)
			assert.Equal(t, "src", seen.Graph.SourceRoot)
		})
	}
}
