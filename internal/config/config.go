package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all dossier configuration.
type Config struct {
	Name string `yaml:"name"`

	// LLM is the default reasoning backend; Stages override it per stage.
	LLM    LLMConfig    `yaml:"llm"`
	Stages StagesConfig `yaml:"stages"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Events   EventsConfig   `yaml:"events"`
	Server   ServerConfig   `yaml:"server"`
	Tools    ToolsConfig    `yaml:"tools"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr              string `yaml:"addr"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"`
	AllowedOrigin     string `yaml:"allowed_origin"`
}

// ToolsConfig configures the retrieval tools.
type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"web_search"`
}

// WebSearchConfig configures the DuckDuckGo-backed web_search tool.
type WebSearchConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	MaxResults int    `yaml:"max_results"`
	CacheSize  int    `yaml:"cache_size"`
	CacheTTL   string `yaml:"cache_ttl"`
}

// ArchiveConfig configures the optional SQLite archive of finished runs.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "dossier",

		LLM: LLMConfig{
			Provider: "anthropic",
			Timeout:  "120s",
		},

		Pipeline: PipelineConfig{
			StepCeiling:        15,
			PivotInterval:      3,
			SufficientEvidence: 8,
			StopOnNoGaps:       true,
			RedraftCeiling:     3,
			MaxFollowUps:       3,
			StageRetries:       1,
			ToolTimeout:        "30s",
			GatherBudget:       "5m",
			RunTimeout:         "15m",
		},

		Events: EventsConfig{
			Retention:     "10m",
			AckGrace:      "30s",
			SweepInterval: "1m",
		},

		Server: ServerConfig{
			Addr:              ":8000",
			MaxConcurrentRuns: 8,
			AllowedOrigin:     "*",
		},

		Tools: ToolsConfig{
			WebSearch: WebSearchConfig{
				Enabled:    true,
				Endpoint:   "https://html.duckduckgo.com/html/",
				MaxResults: 5,
				CacheSize:  256,
				CacheTTL:   "30m",
			},
		},

		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "data/dossier.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// Defaults if config file doesn't exist
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Later keys win: ANTHROPIC < OPENAI < GEMINI.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if addr := os.Getenv("DOSSIER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("DOSSIER_ARCHIVE"); path != "" {
		c.Archive.Enabled = true
		c.Archive.Path = path
	}
	if level := os.Getenv("DOSSIER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.LLM.validate("llm"); err != nil {
		return err
	}
	for name, sc := range c.Stages.byName() {
		if sc.Provider != "" && !isValidProvider(sc.Provider) {
			return fmt.Errorf("stages.%s: invalid provider %q (valid: %v)", name, sc.Provider, ValidProviders)
		}
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if err := c.Events.validate(); err != nil {
		return err
	}
	if c.Server.MaxConcurrentRuns < 1 {
		return fmt.Errorf("server.max_concurrent_runs must be >= 1")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when the archive is enabled")
	}
	return nil
}

// GetCacheTTL returns the web search cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	return parseDuration(c.Tools.WebSearch.CacheTTL, 30*time.Minute)
}

// parseDuration returns fallback for empty or malformed values.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func checkDuration(field, s string) error {
	if s == "" {
		return nil
	}
	if d, err := time.ParseDuration(s); err != nil || d <= 0 {
		return fmt.Errorf("%s: invalid duration %q", field, s)
	}
	return nil
}
