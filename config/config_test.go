package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_REDIS_URL", "redis://localhost:6379/2")

	path := writeConfig(t, "travelrouter.yaml", `
logging:
  level: debug
  format: json

server:
  http_addr: "127.0.0.1:9090"

classifier:
  use_llm: false
  window: 5
  timeout: "2s"

llm:
  provider: openai
  model: gpt-4o-mini
  api_key: sk-test

router:
  collaborator_timeout: "3s"
  failure_threshold: 2

memory:
  backend: redis
  redis_url: "${TEST_REDIS_URL}"
  ttl: "1h"

status:
  provider: static

session:
  idle_timeout: "10m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr, "unset fields keep defaults")

	assert.False(t, cfg.Classifier.UseLLM)
	assert.Equal(t, 5, cfg.Classifier.Window)
	assert.Equal(t, 2*time.Second, cfg.Classifier.Timeout)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)

	assert.Equal(t, 3*time.Second, cfg.Router.CollaboratorTimeout)
	assert.Equal(t, 60*time.Second, cfg.Router.RecoveryTimeout)
	assert.Equal(t, 2, cfg.Router.FailureThreshold)

	assert.Equal(t, "redis", cfg.Memory.Backend)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Memory.RedisURL)
	assert.Equal(t, time.Hour, cfg.Memory.TTL)

	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "travelrouter.toml", `
[logging]
level = "warn"

[classifier]
timeout = "750ms"
rate_limit = 2.5
burst = 4

[memory]
backend = "sqlite"
sqlite_path = "/tmp/memory.db"

[analytics]
database_path = "/tmp/flights.db"
seed = false
cache_ttl = "1m"

[status]
provider = "static"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 750*time.Millisecond, cfg.Classifier.Timeout)
	assert.Equal(t, 2.5, cfg.Classifier.RateLimit)
	assert.Equal(t, 4, cfg.Classifier.Burst)
	assert.True(t, cfg.Classifier.UseLLM)
	assert.Equal(t, "sqlite", cfg.Memory.Backend)
	assert.Equal(t, "/tmp/memory.db", cfg.Memory.SQLitePath)
	assert.False(t, cfg.Analytics.Seed)
	assert.Equal(t, time.Minute, cfg.Analytics.CacheTTL)
}

func TestLoad_SecretsFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("AVIATIONSTACK_API_KEY", "as-key")

	cfg, err := Load(writeConfig(t, "c.yaml", "logging:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	assert.Equal(t, "as-key", cfg.Status.APIKey)
	assert.Equal(t, "aviationstack", cfg.Status.Provider)
}

func TestLoad_AutoStatusWithoutKeyIsStatic(t *testing.T) {
	t.Setenv("AVIATIONSTACK_API_KEY", "")

	cfg, err := Load(writeConfig(t, "c.yaml", "status:\n  provider: auto\n"))
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Status.Provider)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("AVIATIONSTACK_API_KEY", "")

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "classifier:\n  timeout: soon\n", "classifier.timeout"},
		{"bad yaml", "logging: [\n", "parsing config file"},
		{"unknown backend", "memory:\n  backend: mongo\n", "memory.backend"},
		{"redis without url", "memory:\n  backend: redis\n", "memory.redis_url"},
		{"aviationstack without key", "status:\n  provider: aviationstack\n", "status.api_key"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"negative window", "classifier:\n  window: -1\n", "classifier.window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "c.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5*time.Second, cfg.Classifier.Timeout)
	assert.Equal(t, 3, cfg.Classifier.Window)
	assert.Equal(t, 10*time.Second, cfg.Router.CollaboratorTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, "memory", cfg.Memory.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TR_HOST", "example.com")
	assert.Equal(t, "url: https://example.com/x", expandEnvVars("url: https://${TR_HOST}/x"))
	assert.Equal(t, "key: ", expandEnvVars("key: ${TR_UNSET_VARIABLE}"))
}
