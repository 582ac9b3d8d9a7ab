package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var envKeys = []string{
	FileEnv,
	"ANOMALY_API_URL", "BIGML_USERNAME", "BIGML_API_KEY",
	"ANOMALY_CACHE", "ANOMALY_REDIS_ADDR", "ANOMALY_REDIS_PASSWORD", "ANOMALY_REDIS_DB",
	"ANOMALY_REDIS_PREFIX", "ANOMALY_REDIS_TTL", "ANOMALY_BADGER_DIR", "ANOMALY_BADGER_TTL",
	"ANOMALY_LISTEN_ADDR", "ANOMALY_THRESHOLD", "LOG_LEVEL",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, CacheNone, cfg.Cache.Backend)
	assert.Equal(t, 0.6, cfg.Scoring.Threshold)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "config.yaml", `
api:
  username: alice
  api_key: secret
cache:
  backend: redis
  redis:
    addr: redis:6379
    ttl: 1h
server:
  addr: ":9000"
scoring:
  threshold: 0.7
`)
	t.Setenv("ANOMALY_THRESHOLD", "0.65")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.API.Username)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Cache.Redis.TTL)
	assert.Equal(t, "anomalyscore:scorer", cfg.Cache.Redis.Prefix)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 0.65, cfg.Scoring.Threshold)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFileFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(FileEnv, writeFile(t, "config.yaml", "cache:\n  backend: memory\n"))

	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, "test.env", "BIGML_USERNAME=bob\nBIGML_API_KEY=k3y\nANOMALY_CACHE=badger\n")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.API.Username)
	assert.Equal(t, "k3y", cfg.API.APIKey)
	assert.Equal(t, CacheBadger, cfg.Cache.Backend)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"ANOMALY_CACHE": "memcached"}},
		{name: "threshold out of range", env: map[string]string{"ANOMALY_THRESHOLD": "1.5"}},
		{name: "threshold not a number", env: map[string]string{"ANOMALY_THRESHOLD": "high"}},
		{name: "bad ttl", env: map[string]string{"ANOMALY_REDIS_TTL": "forever"}},
		{name: "bad redis db", env: map[string]string{"ANOMALY_REDIS_DB": "one"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "redis without addr", file: "cache:\n  backend: redis\n  redis:\n    addr: \"\"\n"},
		{name: "empty listen addr", file: "server:\n  addr: \"\"\n"},
		{name: "malformed yaml", file: "cache: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var path string
			if tt.file != "" {
				path = writeFile(t, "config.yaml", tt.file)
			}

			_, err := Load(path, noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnvFile(t))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
