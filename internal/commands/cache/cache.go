package cache

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/thomas-vilte/leanreview/internal/cache"
	"github.com/thomas-vilte/leanreview/internal/config"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/urfave/cli/v3"
)

type CacheCommand struct{}

func NewCacheCommand() *CacheCommand {
	return &CacheCommand{}
}

func (c *CacheCommand) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: t.GetMessage("cache_usage", 0, nil),
		Commands: []*cli.Command{
			{
				Name:  "clean",
				Usage: t.GetMessage("cache_clean_usage", 0, nil),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "expired",
						Usage: "Only remove entries older than the cache TTL",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					dir := cfg.References.CacheDir
					if dir == "" {
						_, _ = fmt.Fprintln(cmd.Root().Writer, t.GetMessage("cache_not_configured", 0, nil))
						return nil
					}

					cacheService, err := cache.New(dir, cfg.References.CacheTTL)
					if err != nil {
						return fmt.Errorf("error opening cache: %w", err)
					}

					clean := cacheService.Clean
					if cmd.Bool("expired") {
						clean = cacheService.CleanExpired
					}
					if err := clean(); err != nil {
						return fmt.Errorf("error cleaning cache: %w", err)
					}

					green := color.New(color.FgGreen, color.Bold)
					_, _ = green.Fprintf(cmd.Root().Writer, "✓ %s\n", t.GetMessage("cache_cleaned", 0, map[string]interface{}{
						"Dir": cacheService.Dir(),
					}))
					return nil
				},
			},
		},
	}
}
