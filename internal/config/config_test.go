package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
embedding:
  endpoint_url: http://localhost:8800/embed
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("expected default dimensions 1024, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Model != "google/siglip-large-patch16-384" {
		t.Errorf("unexpected default model %q", cfg.Embedding.Model)
	}
	if cfg.Scrape.DelaySec != 2 {
		t.Errorf("expected default delay 2s, got %v", cfg.Scrape.DelaySec)
	}
	if cfg.Scrape.BatchSize != 50 {
		t.Errorf("expected default batch size 50, got %d", cfg.Scrape.BatchSize)
	}
	if cfg.Scrape.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Scrape.MaxRetries)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("STYLEFEED_TEST_DSN", "postgres://scraper:secret@db:5432/products")

	path := writeConfig(t, `
database:
  dsn: ${STYLEFEED_TEST_DSN}
embedding:
  endpoint_url: ${STYLEFEED_TEST_EMBED:-http://localhost:8800/embed}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.DSN != "postgres://scraper:secret@db:5432/products" {
		t.Errorf("env var not expanded: %q", cfg.Database.DSN)
	}
	if cfg.Embedding.EndpointURL != "http://localhost:8800/embed" {
		t.Errorf("default fallback not applied: %q", cfg.Embedding.EndpointURL)
	}
}

func TestLoad_MissingEndpoint(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://localhost/products
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing embedding.endpoint_url")
	}
}
