package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/thomas-vilte/leanreview/internal/config"
	"github.com/thomas-vilte/leanreview/internal/i18n"
	"github.com/urfave/cli/v3"
)

type ConfigCommandFactory struct{}

func NewConfigCommandFactory() *ConfigCommandFactory {
	return &ConfigCommandFactory{}
}

func (c *ConfigCommandFactory) CreateCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: t.GetMessage("config_usage", 0, nil),
		Commands: []*cli.Command{
			c.newInitCommand(t),
			c.newShowCommand(t, cfg),
		},
	}
}

func (c *ConfigCommandFactory) newInitCommand(t *i18n.Translations) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: t.GetMessage("config_init_usage", 0, nil),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Where to write the file",
				Value: config.DefaultConfigFile,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("path")
			if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
				return errors.New(t.GetMessage("config_exists", 0, map[string]interface{}{"Path": path}))
			}

			fresh := config.Default()
			fresh.PathFile = path
			if err := config.SaveConfig(fresh); err != nil {
				return err
			}

			green := color.New(color.FgGreen, color.Bold)
			_, _ = green.Fprintf(cmd.Root().Writer, "✓ %s\n", t.GetMessage("config_saved", 0, map[string]interface{}{
				"Path": path,
			}))
			return nil
		},
	}
}

func (c *ConfigCommandFactory) newShowCommand(t *i18n.Translations, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: t.GetMessage("config_show_usage", 0, nil),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.Root().Writer
			if cfg.PathFile != "" {
				_, _ = fmt.Fprintf(out, "# %s\n", cfg.PathFile)
			}
			printSecret(out, t, "GITHUB_TOKEN", cfg.GitHub.Token)
			printSecret(out, t, "GEMINI_API_KEY", cfg.AI.APIKey)
			_, _ = fmt.Fprintln(out)

			return config.WriteTOML(out, cfg)
		},
	}
}

func printSecret(w io.Writer, t *i18n.Translations, name, value string) {
	status := t.GetMessage("config_secret_unset", 0, nil)
	if value != "" {
		status = t.GetMessage("config_secret_set", 0, nil)
	}
	_, _ = fmt.Fprintln(w, t.GetMessage("config_secret_status", 0, map[string]interface{}{
		"Name":   name,
		"Status": status,
	}))
}
