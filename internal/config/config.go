package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the stylefeed pipeline configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Ops       OpsConfig       `yaml:"ops"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN                 string `yaml:"dsn"`
	MaxConns            int    `yaml:"max_conns"`
	MinConns            int    `yaml:"min_conns"`
	ReadinessTimeoutSec int    `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds the inference endpoint and cache settings.
type EmbeddingConfig struct {
	EndpointURL   string `yaml:"endpoint_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	TimeoutSec    int    `yaml:"timeout_sec"` // per-item budget: download + inference
	CacheAddr     string `yaml:"cache_addr"`  // empty disables the embedding cache
	CachePassword string `yaml:"cache_password"`
}

// ScrapeConfig holds fetch and pipeline settings shared by all sites.
type ScrapeConfig struct {
	UserAgent         string  `yaml:"user_agent"`
	DelaySec          float64 `yaml:"delay_sec"` // politeness delay before every fetch
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	MaxRetries        int     `yaml:"max_retries"`
	BatchSize         int     `yaml:"batch_size"`
	BrowserMaxPages   int     `yaml:"browser_max_pages"` // global pagination cap
}

// OpsConfig holds the operational HTTP listener settings.
type OpsConfig struct {
	Port int `yaml:"port"` // 0 disables the listener
}

// Load reads configuration from a YAML file, expanding ${VAR} references.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Substitute env variables of the form ${VAR} and ${VAR:-default}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns <= 0 {
		c.Database.MinConns = 2
	}
	if c.Database.ReadinessTimeoutSec <= 0 {
		c.Database.ReadinessTimeoutSec = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "google/siglip-large-patch16-384"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}
	if c.Scrape.UserAgent == "" {
		c.Scrape.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if c.Scrape.DelaySec <= 0 {
		c.Scrape.DelaySec = 2
	}
	if c.Scrape.RequestTimeoutSec <= 0 {
		c.Scrape.RequestTimeoutSec = 10
	}
	if c.Scrape.MaxRetries <= 0 {
		c.Scrape.MaxRetries = 3
	}
	if c.Scrape.BatchSize <= 0 {
		c.Scrape.BatchSize = 50
	}
	if c.Scrape.BrowserMaxPages <= 0 {
		c.Scrape.BrowserMaxPages = 20
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Embedding.EndpointURL == "" {
		return fmt.Errorf("embedding.endpoint_url is required")
	}
	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("ops.port must be between 0 and 65535, got %d", c.Ops.Port)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
