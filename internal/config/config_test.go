package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "db_backup", cfg.BackupPath)
	assert.Equal(t, 10, cfg.Engine.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.BatchDelay)
	assert.Equal(t, 5*time.Minute, cfg.Engine.ActiveRetention)
	assert.Equal(t, 30*time.Minute, cfg.Engine.ResultTTL)
	assert.Equal(t, 0.8, cfg.Engine.IntegrityThreshold)
	assert.Equal(t, "tmp_migration_", cfg.Engine.TempObjectPrefix)
	assert.Equal(t, 30*time.Second, cfg.Progress.SuccessGrace)
	assert.Equal(t, 60*time.Second, cfg.Progress.FailureGrace)
	assert.NotNil(t, cfg.Connections)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graftflow.config.json")
	body := `{
  "backup_path": "backups",
  "connections": {
    "staging": {"provider": "postgresql", "host": "localhost", "port": 5432, "database": "app", "username": "app", "password_env": "STAGING_PW"},
    "local": {"provider": "sqlite", "database": "app.db"}
  },
  "engine": {"batch_size": 25, "batch_delay": "0s", "result_ttl": "1h"},
  "validation": {"rules_file": "rules.yaml"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "backups", cfg.BackupPath)
	assert.Equal(t, 25, cfg.Engine.BatchSize)
	assert.Equal(t, time.Duration(0), cfg.Engine.BatchDelay)
	assert.Equal(t, time.Hour, cfg.Engine.ResultTTL)
	assert.Equal(t, "rules.yaml", cfg.Validation.RulesFile)
	assert.Equal(t, []string{"local", "staging"}, cfg.ConnectionIDs())

	staging, ok := cfg.Connection("staging")
	require.True(t, ok)
	assert.Equal(t, 5432, staging.Port)
	assert.Equal(t, "STAGING_PW", staging.PasswordEnv)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFrom(viper.New())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unsupported provider", func(c *Config) {
			c.Connections["x"] = Connection{Provider: "oracle", Database: "x"}
		}},
		{"missing database", func(c *Config) {
			c.Connections["x"] = Connection{Provider: "mysql"}
		}},
		{"zero batch size", func(c *Config) { c.Engine.BatchSize = 0 }},
		{"threshold above one", func(c *Config) { c.Engine.IntegrityThreshold = 1.5 }},
		{"empty backup path", func(c *Config) { c.BackupPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
