package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thomas-vilte/leanreview/internal/commands/cache"
	configCmd "github.com/thomas-vilte/leanreview/internal/commands/config"
	"github.com/thomas-vilte/leanreview/internal/commands/impact"
	"github.com/thomas-vilte/leanreview/internal/commands/registry"
	"github.com/thomas-vilte/leanreview/internal/commands/review"
	cfg "github.com/thomas-vilte/leanreview/internal/config"
	"github.com/thomas-vilte/leanreview/internal/git"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/ui"
	"github.com/thomas-vilte/leanreview/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, translations, err := initializeApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting leanreview: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		ui.HandleAppError(os.Stderr, err, translations)
		stop()
		os.Exit(1)
	}
}

func initializeApp() (*cli.Command, *i18n.Translations, error) {
	translations, err := i18n.NewTranslations(cfg.LangEN)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading translations: %w", err)
	}

	// filled in by Before once --config is known
	cfgApp := cfg.Default()

	gitService := git.NewGitService(".")

	registerCommand := registry.NewRegistry(cfgApp, translations)

	if err := registerCommand.Register("review", review.NewReviewCommand(
		review.NewServiceProvider(gitService),
		review.DetectFromGit(gitService),
	)); err != nil {
		return nil, nil, err
	}

	if err := registerCommand.Register("impact", impact.NewImpactCommand(
		impact.DefaultResolverProvider,
		impact.GitChangeLister(gitService),
		".",
	)); err != nil {
		return nil, nil, err
	}

	if err := registerCommand.Register("cache", cache.NewCacheCommand()); err != nil {
		return nil, nil, err
	}

	if err := registerCommand.Register("config", configCmd.NewConfigCommandFactory()); err != nil {
		return nil, nil, err
	}

	commands := registerCommand.CreateCommands()

	app := &cli.Command{
		Name:    "leanreview",
		Usage:   translations.GetMessage("app_usage", 0, nil),
		Version: version.FullVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file (default .leanreview.toml)",
				Sources: cli.EnvVars("LEANREVIEW_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("RUNNER_DEBUG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable info logging",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logger.Initialize(cmd.Bool("debug"), cmd.Bool("verbose"))

			loaded, err := cfg.LoadConfig(cmd.String("config"))
			if err != nil {
				return ctx, err
			}
			*cfgApp = *loaded

			lang := cfg.GetLocaleConfig(cfgApp.Language)
			if err := translations.SetLanguage(lang); err != nil {
				logger.Warn(ctx, "unsupported language, using English", "language", cfgApp.Language)
			}

			if cfgApp.PathFile != "" {
				logger.Debug(ctx, "configuration loaded", "path", cfgApp.PathFile)
			}
			return ctx, nil
		},
		Commands:              commands,
		EnableShellCompletion: true,
	}

	return app, translations, nil
}
