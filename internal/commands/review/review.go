package review

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/thomas-vilte/leanreview/internal/commands/completion_helper"
	cfg "github.com/thomas-vilte/leanreview/internal/config"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
	"github.com/thomas-vilte/leanreview/internal/references"
	"github.com/thomas-vilte/leanreview/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner is the review pipeline as seen by the command.
type Runner interface {
	Run(ctx context.Context, req models.ReviewRequest) (models.ReviewOutcome, error)
}

// ServiceProvider builds the pipeline once flags have been applied to config.
type ServiceProvider func(ctx context.Context, config *cfg.Config, t *i18n.Translations) (Runner, error)

// RepoDetector returns owner and repo from the local checkout.
type RepoDetector func(ctx context.Context) (owner, repo string, err error)

type ReviewCommand struct {
	provider ServiceProvider
	detect   RepoDetector
}

// NewReviewCommand creates the command. detect may be nil.
func NewReviewCommand(provider ServiceProvider, detect RepoDetector) *ReviewCommand {
	return &ReviewCommand{
		provider: provider,
		detect:   detect,
	}
}

func (c *ReviewCommand) CreateCommand(t *i18n.Translations, config *cfg.Config) *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: t.GetMessage("review_usage", 0, nil),
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "pr-number",
				Aliases:  []string{"n"},
				Usage:    "Pull request number to review",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "Repository in owner/repo form",
				Sources: cli.EnvVars("GITHUB_REPOSITORY"),
			},
			&cli.StringFlag{
				Name:    "github-token",
				Usage:   "Token used to read the PR and post the comment",
				Sources: cli.EnvVars("GITHUB_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "gemini-api-key",
				Usage:   "Gemini API key",
				Sources: cli.EnvVars("GEMINI_API_KEY"),
			},
			&cli.StringFlag{
				Name:  "external-refs",
				Usage: "Comma-separated URLs of reference documents (HTML, PDF or text)",
			},
			&cli.StringFlag{
				Name:    "internal-refs",
				Aliases: []string{"arklib-refs"},
				Usage:   "Comma-separated repository files or directories to include",
			},
			&cli.StringFlag{
				Name:  "additional-comments",
				Usage: "Free-text instructions appended to the prompt",
			},
			&cli.StringFlag{
				Name:  "gemini-model",
				Usage: "Gemini model name",
			},
			&cli.StringFlag{
				Name:  "graph-command",
				Usage: "Dependency graph exporter command line, {output} is replaced by a temp file; empty disables it",
			},
			&cli.StringFlag{
				Name:  "source-root",
				Usage: "Directory module names are resolved against",
			},
			&cli.IntFlag{
				Name:  "post-retries",
				Usage: "Attempts made to post the comment",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the review instead of posting it",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also write the review to this file",
			},
			&cli.StringFlag{
				Name:  "language",
				Usage: "Review language (en, es)",
			},
		},
		ShellComplete: completion_helper.DefaultFlagComplete,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			start := time.Now()
			prNumber := cmd.Int("pr-number")
			ctx = logger.With(ctx, "pr_number", prNumber)

			applyFlags(cmd, config)

			if cmd.IsSet("language") {
				if err := t.SetLanguage(config.Language); err != nil {
					logger.Warn(ctx, "unsupported language, keeping default", "language", config.Language)
				}
			}

			if prNumber <= 0 {
				return domainErrors.ErrPRNumberMissing
			}

			if config.GitHub.Repository == "" && c.detect != nil {
				owner, repo, err := c.detect(ctx)
				if err != nil {
					logger.Debug(ctx, "could not detect repository from checkout", "error", err)
				} else {
					config.GitHub.Repository = owner + "/" + repo
				}
			}

			if err := config.Validate(); err != nil {
				return err
			}
			if !cfg.IsKnownModel(config.AI.Model) {
				logger.Warn(ctx, "model is not in the tested list, passing it through", "model", config.AI.Model)
			}

			logger.Info(ctx, "executing review command",
				"repository", config.GitHub.Repository,
				"model", config.AI.Model,
				"dry_run", config.DryRun)

			runner, err := c.provider(ctx, config, t)
			if err != nil {
				logger.Error(ctx, "failed to create review service", err,
					"duration_ms", time.Since(start).Milliseconds())
				return err
			}

			spin := ui.NewSpinner(cmd.Root().ErrWriter, t.GetMessage("review_in_progress", 0, map[string]interface{}{
				"PRNumber": prNumber,
			}))
			spin.Start()
			outcome, err := runner.Run(ctx, models.ReviewRequest{
				PRNumber:           prNumber,
				ExternalRefs:       references.ParseList(cmd.String("external-refs")),
				InternalRefs:       references.ParseList(cmd.String("internal-refs")),
				AdditionalComments: cmd.String("additional-comments"),
				DryRun:             config.DryRun,
			})
			spin.Stop()
			if err != nil {
				logger.Error(ctx, "review failed", err,
					"duration_ms", time.Since(start).Milliseconds())
				return err
			}

			out := cmd.Root().Writer
			if outcome.Comment == nil {
				_, _ = fmt.Fprintln(out, outcome.Body)
				return nil
			}

			green := color.New(color.FgGreen, color.Bold)
			_, _ = green.Fprintf(out, "✓ %s\n", t.GetMessage("review_posted", 0, map[string]interface{}{
				"URL": outcome.Comment.URL,
			}))

			ui.PrintTokenUsage(out, outcome.Review.Usage, t)
			return nil
		},
	}
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(cmd *cli.Command, config *cfg.Config) {
	if v := cmd.String("repo"); v != "" {
		config.GitHub.Repository = v
	}
	if v := cmd.String("github-token"); v != "" {
		config.GitHub.Token = v
	}
	if v := cmd.String("gemini-api-key"); v != "" {
		config.AI.APIKey = v
	}
	if v := cmd.String("gemini-model"); v != "" {
		config.AI.Model = cfg.Model(v)
	}
	if cmd.IsSet("graph-command") {
		config.Graph.SetCommandLine(cmd.String("graph-command"))
	}
	if cmd.IsSet("source-root") {
		config.Graph.SourceRoot = cmd.String("source-root")
	}
	if cmd.IsSet("post-retries") {
		config.Post.MaxAttempts = cmd.Int("post-retries")
	}
	if cmd.IsSet("dry-run") {
		config.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("output") {
		config.Output = cmd.String("output")
	}
	if cmd.IsSet("language") {
		config.Language = cfg.GetLocaleConfig(cmd.String("language"))
	}
}
