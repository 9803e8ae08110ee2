package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GITHUB_TOKEN", "GITHUB_API_URL", "GITHUB_REPOSITORY", "GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		t.Setenv(key, "")
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.GitHub.Token = "ghp_test"
	cfg.GitHub.Repository = "Verified-zkEVM/ArkLib"
	cfg.AI.APIKey = "gemini-key"
	return cfg
}

func TestLoadConfig(t *testing.T) {
	t.Run("should return defaults when no config file exists", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())

		cfg, err := LoadConfig("")

		require.NoError(t, err)
		assert.Equal(t, DefaultModel, cfg.AI.Model)
		assert.Equal(t, "lake", cfg.Graph.Command)
		assert.Equal(t, DefaultGraphArgs, cfg.Graph.Args)
		assert.Equal(t, 3, cfg.Post.MaxAttempts)
		assert.Equal(t, 30*time.Second, cfg.References.Timeout)
		assert.Empty(t, cfg.PathFile)
	})

	t.Run("should read the default config file from the working directory", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		t.Chdir(dir)

		content := `
language = "es"

[ai]
model = "gemini-2.5-flash"

[graph]
command = "lake"
args = ["exe", "graph", "--to", "ArkLib", "{output}"]
timeout = "5m"
direction = "imports"

[post]
max_attempts = 5
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(content), 0644))

		cfg, err := LoadConfig("")

		require.NoError(t, err)
		assert.Equal(t, "es", cfg.Language)
		assert.Equal(t, ModelGeminiV25Flash, cfg.AI.Model)
		assert.Equal(t, []string{"exe", "graph", "--to", "ArkLib", "{output}"}, cfg.Graph.Args)
		assert.Equal(t, 5*time.Minute, cfg.Graph.Timeout)
		assert.Equal(t, "imports", cfg.Graph.Direction)
		assert.Equal(t, 5, cfg.Post.MaxAttempts)
		assert.Equal(t, 30*time.Second, cfg.References.Timeout, "unset values keep defaults")
		assert.NotEmpty(t, cfg.PathFile)
	})

	t.Run("should fail when an explicit config file is missing", func(t *testing.T) {
		clearEnv(t)
		t.Chdir(t.TempDir())

		_, err := LoadConfig("missing.toml")

		assert.True(t, errors.Is(err, domainErrors.ErrInvalidConfig))
	})

	t.Run("should fail on malformed TOML", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		t.Chdir(dir)
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[ai\nmodel = "), 0644))

		_, err := LoadConfig(path)

		assert.True(t, errors.Is(err, domainErrors.ErrInvalidConfig))
	})

	t.Run("should apply environment and .env values", func(t *testing.T) {
		clearEnv(t)
		// godotenv never overrides variables that are already set, even if empty.
		require.NoError(t, os.Unsetenv("GEMINI_API_KEY"))
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-dotenv\n"), 0644))
		t.Setenv("GITHUB_TOKEN", "ghp_env")
		t.Setenv("GITHUB_REPOSITORY", "owner/repo")

		cfg, err := LoadConfig("")

		require.NoError(t, err)
		assert.Equal(t, "ghp_env", cfg.GitHub.Token)
		assert.Equal(t, "owner/repo", cfg.GitHub.Repository)
		assert.Equal(t, "from-dotenv", cfg.AI.APIKey)
		assert.Equal(t, "owner", cfg.Owner())
		assert.Equal(t, "repo", cfg.Repo())
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.GitHub.Token = "" }, wantErr: domainErrors.ErrTokenMissing},
		{name: "missing repository", mutate: func(c *Config) { c.GitHub.Repository = "" }, wantErr: domainErrors.ErrRepositoryMissing},
		{name: "malformed repository", mutate: func(c *Config) { c.GitHub.Repository = "only-owner" }, wantErr: domainErrors.ErrInvalidRepository},
		{name: "too many segments", mutate: func(c *Config) { c.GitHub.Repository = "a/b/c" }, wantErr: domainErrors.ErrInvalidRepository},
		{name: "missing api key", mutate: func(c *Config) { c.AI.APIKey = "" }, wantErr: domainErrors.ErrAPIKeyMissing},
		{name: "zero attempts", mutate: func(c *Config) { c.Post.MaxAttempts = 0 }, wantErr: domainErrors.ErrInvalidConfig},
		{name: "bad direction", mutate: func(c *Config) { c.Graph.Direction = "sideways" }, wantErr: domainErrors.ErrInvalidConfig},
		{name: "zero concurrency", mutate: func(c *Config) { c.References.Concurrency = 0 }, wantErr: domainErrors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestModels(t *testing.T) {
	assert.True(t, IsKnownModel(DefaultModel))
	assert.False(t, IsKnownModel("gpt-4o"))
	assert.Equal(t, LangES, GetLocaleConfig("es"))
	assert.Equal(t, LangEN, GetLocaleConfig("fr"))
}

func TestGraphConfig_SetCommandLine(t *testing.T) {
	g := Default().Graph

	g.SetCommandLine("  lake exe graph --to ArkLib {output} ")
	assert.True(t, g.Enabled)
	assert.Equal(t, "lake", g.Command)
	assert.Equal(t, []string{"exe", "graph", "--to", "ArkLib", "{output}"}, g.Args)

	g.SetCommandLine("")
	assert.False(t, g.Enabled)
	assert.Equal(t, "lake", g.Command)
}

func TestSaveConfig(t *testing.T) {
	t.Run("should round-trip through LoadConfig without secrets", func(t *testing.T) {
		// Arrange
		clearEnv(t)
		cfg := Default()
		cfg.PathFile = filepath.Join(t.TempDir(), DefaultConfigFile)
		cfg.GitHub.Repository = "Verified-zkEVM/ArkLib"
		cfg.GitHub.Token = "ghs_secret"
		cfg.AI.APIKey = "gm_secret"
		cfg.Graph.SourceRoot = "ArkLib"
		cfg.References.CacheTTL = 2 * time.Hour

		// Act
		require.NoError(t, SaveConfig(cfg))
		loaded, err := LoadConfig(cfg.PathFile)

		// Assert
		require.NoError(t, err)
		raw, err := os.ReadFile(cfg.PathFile)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "secret")
		assert.Empty(t, loaded.GitHub.Token)
		assert.Empty(t, loaded.AI.APIKey)
		assert.Equal(t, "Verified-zkEVM/ArkLib", loaded.GitHub.Repository)
		assert.Equal(t, "ArkLib", loaded.Graph.SourceRoot)
		assert.Equal(t, 2*time.Hour, loaded.References.CacheTTL)
		assert.Equal(t, cfg.Graph.Args, loaded.Graph.Args)
	})

	t.Run("should fail without a path", func(t *testing.T) {
		assert.Error(t, SaveConfig(Default()))
	})
}
