package review

import (
	"context"
	"os"

	"github.com/thomas-vilte/leanreview/internal/ai/gemini"
	"github.com/thomas-vilte/leanreview/internal/cache"
	cfg "github.com/thomas-vilte/leanreview/internal/config"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/git"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/impact"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/references"
	"github.com/thomas-vilte/leanreview/internal/repofiles"
	"github.com/thomas-vilte/leanreview/internal/retry"
	"github.com/thomas-vilte/leanreview/internal/services"
	"github.com/thomas-vilte/leanreview/internal/vcs/github"
)

// NewServiceProvider wires the production pipeline: GitHub, Gemini, the
// graph exporter, the working copy at gitService's root and the reference
// fetcher, with a disk cache only when references.cache_dir is set.
func NewServiceProvider(gitService *git.GitService) ServiceProvider {
	return func(ctx context.Context, config *cfg.Config, t *i18n.Translations) (Runner, error) {
		root, err := gitService.RepoRoot(ctx)
		if err != nil {
			logger.Warn(ctx, "not inside a git checkout, using working directory", "error", err)
			root = gitService.Dir
		}

		client, err := github.NewGitHubClient(
			config.Owner(),
			config.Repo(),
			config.GitHub.Token,
			config.GitHub.APIURL,
			github.WithRetryConfig(retry.Config{
				MaxAttempts: config.Post.MaxAttempts,
				BaseDelay:   config.Post.BaseDelay,
				MaxDelay:    config.Post.MaxDelay,
				Multiplier:  2,
				Jitter:      true,
			}),
		)
		if err != nil {
			return nil, err
		}

		reviewer, err := gemini.NewGeminiReviewer(ctx, config)
		if err != nil {
			return nil, err
		}

		resolver, err := impact.NewResolver(config.Graph, root)
		if err != nil {
			return nil, err
		}

		reader := &repofiles.Reader{
			Root:          root,
			MaxFileBytes:  config.Context.MaxFileBytes,
			MaxTotalBytes: config.Context.MaxTotalBytes,
		}

		fetcher := references.NewFetcher(fetcherOptions(ctx, config.References)...)

		return services.NewReviewService(client, reviewer, resolver, reader, fetcher, t,
			services.WithLanguage(config.Language),
			services.WithMaxImpacted(config.Context.MaxImpacted),
			services.WithOutputFile(config.Output),
			services.WithStepSummary(os.Getenv("GITHUB_STEP_SUMMARY")),
		), nil
	}
}

func fetcherOptions(ctx context.Context, rc cfg.ReferencesConfig) []references.Option {
	opts := []references.Option{
		references.WithTimeout(rc.Timeout),
		references.WithUserAgent(rc.UserAgent),
		references.WithConcurrency(rc.Concurrency),
		references.WithRateLimit(rc.RateLimit),
		references.WithMaxBytes(rc.MaxBytes),
	}

	// runs keep no state unless a cache directory is configured
	if rc.CacheDir == "" {
		return opts
	}

	diskCache, err := cache.New(rc.CacheDir, rc.CacheTTL)
	if err != nil {
		logger.Warn(ctx, "reference cache disabled", "error", err, "dir", rc.CacheDir)
		return opts
	}
	return append(opts, references.WithDiskCache(diskCache))
}

// DetectFromGit reads owner and repo from the checkout's origin remote.
func DetectFromGit(gitService *git.GitService) RepoDetector {
	return func(ctx context.Context) (string, string, error) {
		owner, repo, provider, err := gitService.GetRepoInfo(ctx)
		if err != nil {
			return "", "", err
		}
		if provider != "github" {
			return "", "", domainErrors.ErrExtractRepoInfo.
				WithContext("provider", provider)
		}
		return owner, repo, nil
	}
}
