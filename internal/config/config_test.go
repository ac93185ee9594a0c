package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "be-hr-approvals", cfg.Service.Name)
	assert.Equal(t, 8086, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.False(t, cfg.Resolver.HierarchicalFallback)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "approvals.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  environment: staging
server:
  port: 9000
  shutdown_timeout: 3s
storage:
  driver: memory
resolver:
  hierarchical_fallback: true
redis:
  addr: redis:6379
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Service.Environment)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Resolver.HierarchicalFallback)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_MAX_IDLE_TIME", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_MAX_IDLE_TIME")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"http port", func(c *Config) { c.Server.Port = 0 }},
		{"pool sizes", func(c *Config) { c.Database.MinConns = 20 }},
		{"tracing exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
