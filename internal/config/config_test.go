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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.True(t, cfg.Development())
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "memory", cfg.DBDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.SchedulerTick)
	assert.Equal(t, 3, cfg.CASRetries)
	assert.Equal(t, 512, cfg.PoolCacheSize)
	assert.Equal(t, "localhost:9000", cfg.ClickHouse.Addr)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=8080\nCAS_RETRIES=5\n"), 0o600))
	t.Setenv("SCHEDULER_TICK", "1s")
	// godotenv never overrides variables that are already set
	t.Setenv("PORT", "9090")
	t.Cleanup(func() { os.Unsetenv("CAS_RETRIES") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.CASRetries)
	assert.Equal(t, time.Second, cfg.SchedulerTick)
}

func TestValidate(t *testing.T) {
	base := Config{Environment: "development", DBDriver: "memory", CASRetries: 3, SchedulerTick: time.Second}
	require.NoError(t, base.Validate())

	tests := map[string]func(c *Config){
		"unknown driver": func(c *Config) { c.DBDriver = "mongo" },
		"postgres without url": func(c *Config) {
			c.DBDriver = "postgres"
			c.Environment = "staging"
			c.Authentik = Authentik{BaseURL: "b", ClientID: "i", ClientSecret: "s"}
		},
		"no retries":              func(c *Config) { c.CASRetries = 0 },
		"zero tick":               func(c *Config) { c.SchedulerTick = 0 },
		"production without auth": func(c *Config) { c.Environment = "production" },
	}
	dev := base
	dev.DBDriver = "postgres"
	assert.NoError(t, dev.Validate(), "development uses the mock postgres")

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
