package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	domainErrors "github.com/thomas-vilte/leanreview/internal/errors"
)

// DefaultConfigFile is looked up in the working directory when no explicit
// path is given.
const DefaultConfigFile = ".leanreview.toml"

type (
	Config struct {
		GitHub     GitHubConfig     `toml:"github"`
		AI         AIConfig         `toml:"ai"`
		Graph      GraphConfig      `toml:"graph"`
		Context    ContextConfig    `toml:"context"`
		References ReferencesConfig `toml:"references"`
		Post       PostConfig       `toml:"post"`

		Language string `toml:"language"`
		DryRun   bool   `toml:"dry_run"`
		Output   string `toml:"output"`

		// PathFile is the file the configuration was read from, if any.
		PathFile string `toml:"-"`
	}

	GitHubConfig struct {
		Token      string `toml:"-"`
		APIURL     string `toml:"api_url"`
		Repository string `toml:"repository"`
	}

	AIConfig struct {
		APIKey          string  `toml:"-"`
		Model           Model   `toml:"model"`
		Temperature     float32 `toml:"temperature"`
		MaxOutputTokens int32   `toml:"max_output_tokens"`
	}

	GraphConfig struct {
		Enabled    bool          `toml:"enabled"`
		Command    string        `toml:"command"`
		Args       []string      `toml:"args"`
		Timeout    time.Duration `toml:"timeout"`
		Direction  string        `toml:"direction"`
		SourceRoot string        `toml:"source_root"`
		Extension  string        `toml:"extension"`

		// OutputSuffix names the temp file substituted for {output}; the
		// exporter picks its format from the extension.
		OutputSuffix string `toml:"output_suffix"`
	}

	ContextConfig struct {
		MaxFileBytes  int `toml:"max_file_bytes"`
		MaxTotalBytes int `toml:"max_total_bytes"`
		MaxImpacted   int `toml:"max_impacted_files"`
	}

	ReferencesConfig struct {
		Timeout     time.Duration `toml:"timeout"`
		UserAgent   string        `toml:"user_agent"`
		Concurrency int           `toml:"concurrency"`
		RateLimit   float64       `toml:"rate_limit"`
		MaxBytes    int64         `toml:"max_bytes"`
		CacheDir    string        `toml:"cache_dir"`
		CacheTTL    time.Duration `toml:"cache_ttl"`
	}

	PostConfig struct {
		MaxAttempts int           `toml:"max_attempts"`
		BaseDelay   time.Duration `toml:"base_delay"`
		MaxDelay    time.Duration `toml:"max_delay"`
	}
)

const (
	defaultLang            = "en"
	defaultAPIURL          = "https://api.github.com"
	defaultGraphCommand    = "lake"
	defaultGraphTimeout    = 20 * time.Minute
	defaultExtension       = ".lean"
	defaultOutputSuffix    = ".dot"
	defaultMaxFileBytes    = 200_000
	defaultMaxTotalBytes   = 2_000_000
	defaultMaxImpacted     = 200
	defaultRefTimeout      = 30 * time.Second
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	defaultConcurrency     = 4
	defaultRateLimit       = 5
	defaultMaxRefBytes     = 50 << 20
	defaultCacheTTL        = 24 * time.Hour
	defaultPostAttempts    = 3
	defaultPostBaseDelay   = 2 * time.Second
	defaultPostMaxDelay    = 30 * time.Second
	defaultTemperature     = 0.3
	defaultMaxOutputTokens = 16384
)

// DefaultGraphArgs runs import-graph and writes the graph to a temporary file.
var DefaultGraphArgs = []string{"exe", "graph", "{output}"}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			APIURL: defaultAPIURL,
		},
		AI: AIConfig{
			Model:           DefaultModel,
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
		Graph: GraphConfig{
			Enabled:   true,
			Command:   defaultGraphCommand,
			Args:      append([]string(nil), DefaultGraphArgs...),
			Timeout:   defaultGraphTimeout,
			Direction: "imported-by",
			Extension: defaultExtension,

			OutputSuffix: defaultOutputSuffix,
		},
		Context: ContextConfig{
			MaxFileBytes:  defaultMaxFileBytes,
			MaxTotalBytes: defaultMaxTotalBytes,
			MaxImpacted:   defaultMaxImpacted,
		},
		References: ReferencesConfig{
			Timeout:     defaultRefTimeout,
			UserAgent:   defaultUserAgent,
			Concurrency: defaultConcurrency,
			RateLimit:   defaultRateLimit,
			MaxBytes:    defaultMaxRefBytes,
			CacheTTL:    defaultCacheTTL,
		},
		Post: PostConfig{
			MaxAttempts: defaultPostAttempts,
			BaseDelay:   defaultPostBaseDelay,
			MaxDelay:    defaultPostMaxDelay,
		},
		Language: defaultLang,
	}
}

// LoadConfig layers defaults, the TOML file at path (or DefaultConfigFile
// when path is empty and the file exists), a .env file and the process
// environment. Flags are applied on top by the caller.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, domainErrors.ErrInvalidConfig.
				WithError(err).
				WithContext("path", path)
		}
		abs, err := filepath.Abs(path)
		if err == nil {
			cfg.PathFile = abs
		} else {
			cfg.PathFile = path
		}
	} else if explicit {
		return nil, domainErrors.ErrInvalidConfig.
			WithError(fmt.Errorf("error reading configuration file: %w", err)).
			WithContext("path", path)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	cfg.ApplyEnv()

	return cfg, nil
}

// ApplyEnv fills values that are conventionally provided through the
// environment of a GitHub Actions job.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_API_URL"); v != "" {
		c.GitHub.APIURL = v
	}
	if v := os.Getenv("GITHUB_REPOSITORY"); v != "" && c.GitHub.Repository == "" {
		c.GitHub.Repository = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" && c.AI.APIKey == "" {
		c.AI.APIKey = v
	}
}

// Owner returns the owner part of the owner/repo repository string.
func (c *Config) Owner() string {
	owner, _, _ := strings.Cut(c.GitHub.Repository, "/")
	return owner
}

// Repo returns the repository part of the owner/repo repository string.
func (c *Config) Repo() string {
	_, repo, _ := strings.Cut(c.GitHub.Repository, "/")
	return repo
}

// Validate checks the values needed for a full review run.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return domainErrors.ErrTokenMissing
	}
	if c.GitHub.Repository == "" {
		return domainErrors.ErrRepositoryMissing
	}
	if c.Owner() == "" || c.Repo() == "" || strings.Count(c.GitHub.Repository, "/") != 1 {
		return domainErrors.ErrInvalidRepository.WithContext("repository", c.GitHub.Repository)
	}
	if c.AI.APIKey == "" {
		return domainErrors.ErrAPIKeyMissing
	}
	if c.AI.Model == "" {
		return domainErrors.ErrInvalidConfig.WithContext("field", "ai.model")
	}
	if c.Post.MaxAttempts <= 0 {
		return domainErrors.ErrInvalidConfig.
			WithContext("field", "post.max_attempts").
			WithSuggestion("post.max_attempts must be greater than 0")
	}
	switch c.Graph.Direction {
	case "imports", "imported-by":
	default:
		return domainErrors.ErrInvalidConfig.
			WithContext("field", "graph.direction").
			WithSuggestion("graph.direction must be 'imports' or 'imported-by'")
	}
	if c.References.Concurrency <= 0 {
		return domainErrors.ErrInvalidConfig.WithContext("field", "references.concurrency")
	}
	return nil
}

// SaveConfig writes the file-backed part of the configuration to
// config.PathFile as TOML. Secrets are never written.
func SaveConfig(config *Config) error {
	if config.PathFile == "" {
		return errors.New("configuration file path is not set")
	}

	f, err := os.Create(config.PathFile)
	if err != nil {
		return fmt.Errorf("error creating configuration file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := WriteTOML(f, config); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}
	return nil
}

// WriteTOML encodes the file-backed part of the configuration.
func WriteTOML(w io.Writer, config *Config) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return enc.Encode(config)
}

// SetCommandLine replaces the exporter command with a whitespace-separated
// command line. An empty line disables graph export.
func (g *GraphConfig) SetCommandLine(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		g.Enabled = false
		return
	}
	g.Enabled = true
	g.Command = fields[0]
	g.Args = fields[1:]
}
