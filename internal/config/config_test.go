package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 5m
navigation:
  stateStore: redis
  tickInterval: 500ms
  autoAdvance: true
admin:
  timezone: America/New_York
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Navigation.StateStore)
	assert.True(t, cfg.Navigation.AutoAdvance)
	assert.Equal(t, 5*time.Minute, config.TTLDuration(cfg.Redis.TTL, time.Minute))
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, config.StateStoreMemory, cfg.Navigation.StateStore)
	assert.Equal(t, "1s", cfg.Navigation.TickInterval)
	assert.Equal(t, "UTC", cfg.Admin.Timezone)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("STATE_STORE", "sqlite")
	t.Setenv("SQLITE_PATH", "nav.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_DB", "3")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, config.StateStoreSQLite, cfg.Navigation.StateStore)
	assert.Equal(t, "nav.db", cfg.Navigation.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{
			name:    "unknown store",
			mutate:  func(c *config.Config) { c.Navigation.StateStore = "etcd" },
			wantErr: "unknown navigation.stateStore",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *config.Config) { c.Navigation.StateStore = config.StateStoreSQLite },
			wantErr: "requires navigation.sqlitePath",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *config.Config) { c.Navigation.StateStore = config.StateStoreRedis },
			wantErr: "requires redis.addr",
		},
		{
			name:    "zero tick",
			mutate:  func(c *config.Config) { c.Navigation.TickInterval = "0s" },
			wantErr: "must be positive",
		},
		{
			name:    "bad tick",
			mutate:  func(c *config.Config) { c.Navigation.TickInterval = "soon" },
			wantErr: "invalid navigation.tickInterval",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *config.Config) { c.Admin.Timezone = "Mars/Olympus" },
			wantErr: "invalid admin.timezone",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *config.Config) { c.Log.Format = "xml" },
			wantErr: "unknown log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, time.Minute, config.TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, config.TTLDuration("nonsense", time.Minute))
	assert.Equal(t, 90*time.Second, config.TTLDuration("90s", time.Minute))
}
