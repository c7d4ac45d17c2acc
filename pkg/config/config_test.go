package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isnad-labs/isnad/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: System must boot with safe defaults in dev mode.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "LEDGER_PATH",
		"WORKER_INTERVAL", "RATE_LIMIT_RPS", "ISNAD_PRODUCTION",
		"ALLOWED_ORIGINS", "ISNAD_AUTH_SECRET", "OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "isnad.jsonl", cfg.LedgerPath)
	assert.Equal(t, time.Hour, cfg.WorkerInterval)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.False(t, cfg.Production)
	assert.Empty(t, cfg.AllowedOrigins)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: Ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/isnad")
	t.Setenv("WORKER_INTERVAL", "600")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("ISNAD_PRODUCTION", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/isnad", cfg.DatabaseURL)
	assert.Equal(t, 10*time.Minute, cfg.WorkerInterval)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.True(t, cfg.Production)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_IgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("WORKER_INTERVAL", "soon")
	t.Setenv("RATE_LIMIT_RPS", "-3")

	cfg := config.Load()
	assert.Equal(t, time.Hour, cfg.WorkerInterval)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
}

func TestLoadNodeProfile(t *testing.T) {
	doc := `
name: edge-node-1
storage:
  backend: sqlite
  path: /var/lib/isnad/ledger.db
scanner:
  interval_seconds: 1800
  requests_per_second: 2
  connectors:
    - pattern: '^https://forge\.example\.com/'
      platform: forge
webhooks:
  - pattern: 'attestation.*'
    url: https://hooks.example.com/isnad
archive:
  kind: fs
  root: /var/lib/isnad/bundles
policy_dir: /etc/isnad/policies
`
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := config.LoadNodeProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "edge-node-1", p.Name)
	assert.Equal(t, "sqlite", p.Storage.Backend)
	assert.Equal(t, 1800, p.Scanner.IntervalSeconds)
	require.Len(t, p.Scanner.Connectors, 1)
	assert.Equal(t, "forge", p.Scanner.Connectors[0].Platform)
	require.Len(t, p.Webhook, 1)
	assert.Equal(t, "fs", p.Archive.Kind)
}

func TestLoadNodeProfileRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: carrier-pigeon\n"), 0o644))

	_, err := config.LoadNodeProfile(path)
	assert.Error(t, err)
}
