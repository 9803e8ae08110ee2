package impact

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/thomas-vilte/leanreview/internal/commands/completion_helper"
	cfg "github.com/thomas-vilte/leanreview/internal/config"
	"github.com/thomas-vilte/leanreview/internal/git"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	domainImpact "github.com/thomas-vilte/leanreview/internal/impact"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
	"github.com/thomas-vilte/leanreview/internal/references"
	"github.com/urfave/cli/v3"
)

type Resolver interface {
	Resolve(ctx context.Context, changeSet models.ChangeSet) domainImpact.Result
}

// ResolverProvider builds a resolver for the repository at root.
type ResolverProvider func(ctx context.Context, graph cfg.GraphConfig, root string) (Resolver, error)

// ChangeLister lists files changed on HEAD since base.
type ChangeLister func(ctx context.Context, base string) ([]string, error)

type ImpactCommand struct {
	provider ResolverProvider
	changes  ChangeLister
	root     string
}

func NewImpactCommand(provider ResolverProvider, changes ChangeLister, root string) *ImpactCommand {
	return &ImpactCommand{
		provider: provider,
		changes:  changes,
		root:     root,
	}
}

// DefaultResolverProvider runs the configured exporter.
func DefaultResolverProvider(_ context.Context, graph cfg.GraphConfig, root string) (Resolver, error) {
	r, err := domainImpact.NewResolver(graph, root)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GitChangeLister lists changes with git in the service's directory.
func GitChangeLister(gitService *git.GitService) ChangeLister {
	return gitService.ChangedFilesAgainst
}

func (c *ImpactCommand) CreateCommand(t *i18n.Translations, config *cfg.Config) *cli.Command {
	return &cli.Command{
		Name:  "impact",
		Usage: t.GetMessage("impact_usage", 0, nil),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "files",
				Aliases: []string{"f"},
				Usage:   "Comma-separated changed files",
			},
			&cli.StringFlag{
				Name:    "base",
				Aliases: []string{"b"},
				Usage:   "Git ref to diff HEAD against",
			},
			&cli.StringFlag{
				Name:  "graph-command",
				Usage: "Dependency graph exporter command line; empty disables it",
			},
			&cli.StringFlag{
				Name:  "source-root",
				Usage: "Directory module names are resolved against",
			},
		},
		ShellComplete: completion_helper.DefaultFlagComplete,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			start := time.Now()

			if cmd.IsSet("graph-command") {
				config.Graph.SetCommandLine(cmd.String("graph-command"))
			}
			if cmd.IsSet("source-root") {
				config.Graph.SourceRoot = cmd.String("source-root")
			}

			var (
				files []string
				err   error
			)
			switch {
			case cmd.String("files") != "":
				files = references.ParseList(cmd.String("files"))
			case cmd.String("base") != "":
				files, err = c.changes(ctx, cmd.String("base"))
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("%s", t.GetMessage("impact_input_required", 0, nil))
			}

			resolver, err := c.provider(ctx, config.Graph, c.root)
			if err != nil {
				return err
			}

			result := resolver.Resolve(ctx, models.NewChangeSet(files))
			if result.Fallback {
				yellow := color.New(color.FgYellow)
				_, _ = yellow.Fprintf(cmd.Root().ErrWriter, "⚠ %s\n", t.GetMessage("impact_fallback", 0, map[string]interface{}{
					"Reason": result.Reason,
				}))
			}

			out := cmd.Root().Writer
			for _, p := range result.Files {
				_, _ = fmt.Fprintln(out, p)
			}

			logger.Info(ctx, "impact command finished",
				"changed", len(files),
				"count", len(result.Files),
				"fallback", result.Fallback,
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		},
	}
}
