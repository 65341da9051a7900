package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable LoadConfig reads for the duration of t.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CONFIG_FILE", "PORT", "APP_ENV", "LOG_LEVEL", "REQUEST_TIMEOUT", "STORE_BACKEND",
		"DATABASE_URL", "DB_CONNECTION_TIMEOUT", "REDIS_ADDR", "REDIS_KEY_PREFIX", "BADGER_PATH",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/monjobs")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.DBConnectionTimeout)
	assert.Equal(t, "monjobs", cfg.RedisKeyPrefix)
	assert.Equal(t, "development", cfg.Env)
}

func TestLoadConfigEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT", "1500ms")
	t.Setenv("DB_CONNECTION_TIMEOUT", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 3*time.Second, cfg.DBConnectionTimeout)
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "monjobs.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "production"

[server]
port = 7070
request_timeout = "2s"

[logging]
level = "debug"

[store]
backend = "badger"
badger_path = "/var/lib/monjobs"
connection_timeout = "10s"
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7171")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7171, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.DBConnectionTimeout)
	assert.Equal(t, BackendBadger, cfg.StoreBackend)
	assert.Equal(t, "/var/lib/monjobs", cfg.BadgerPath)
}

func TestLoadConfigFileErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	_, err := LoadConfig()
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte(`[server]
request_timeout = "soon"
`), 0o600))
	t.Setenv("CONFIG_FILE", bad)
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "request_timeout")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "postgres needs url", mutate: func(c *Config) {}, wantErr: "DATABASE_URL"},
		{name: "redis needs addr", mutate: func(c *Config) { c.StoreBackend = BackendRedis }, wantErr: "REDIS_ADDR"},
		{name: "badger needs path", mutate: func(c *Config) { c.StoreBackend = BackendBadger }, wantErr: "BADGER_PATH"},
		{name: "memory needs nothing", mutate: func(c *Config) { c.StoreBackend = BackendMemory }},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "mongo" }, wantErr: "STORE_BACKEND"},
		{name: "bad port", mutate: func(c *Config) { c.StoreBackend = BackendMemory; c.Port = 70000 }, wantErr: "PORT"},
		{name: "bad timeout", mutate: func(c *Config) { c.StoreBackend = BackendMemory; c.RequestTimeout = 0 }, wantErr: "REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
