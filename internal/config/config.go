package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Version     string                `json:"version" mapstructure:"version"`
	BackupPath  string                `json:"backup_path" mapstructure:"backup_path"`
	Connections map[string]Connection `json:"connections" mapstructure:"connections"`
	Engine      Engine                `json:"engine" mapstructure:"engine"`
	Progress    Progress              `json:"progress" mapstructure:"progress"`
	Validation  Validation            `json:"validation" mapstructure:"validation"`
}

// Connection describes one database. Secrets never live in the config file:
// PasswordEnv and URLEnv name environment variables.
type Connection struct {
	Name        string `json:"name,omitempty" mapstructure:"name"`
	Provider    string `json:"provider" mapstructure:"provider"`
	Host        string `json:"host,omitempty" mapstructure:"host"`
	Port        int    `json:"port,omitempty" mapstructure:"port"`
	Database    string `json:"database,omitempty" mapstructure:"database"`
	Username    string `json:"username,omitempty" mapstructure:"username"`
	PasswordEnv string `json:"password_env,omitempty" mapstructure:"password_env"`
	URLEnv      string `json:"url_env,omitempty" mapstructure:"url_env"`
}

type Engine struct {
	BatchSize          int           `json:"batch_size" mapstructure:"batch_size"`
	BatchDelay         time.Duration `json:"batch_delay" mapstructure:"batch_delay"`
	ActiveRetention    time.Duration `json:"active_retention" mapstructure:"active_retention"`
	ResultTTL          time.Duration `json:"result_ttl" mapstructure:"result_ttl"`
	IntegrityThreshold float64       `json:"integrity_threshold" mapstructure:"integrity_threshold"`
	TempObjectPrefix   string        `json:"temp_object_prefix" mapstructure:"temp_object_prefix"`
}

type Progress struct {
	SuccessGrace time.Duration `json:"success_grace" mapstructure:"success_grace"`
	FailureGrace time.Duration `json:"failure_grace" mapstructure:"failure_grace"`
}

type Validation struct {
	RulesFile   string        `json:"rules_file,omitempty" mapstructure:"rules_file"`
	RuleTimeout time.Duration `json:"rule_timeout" mapstructure:"rule_timeout"`
}

var supportedProviders = []string{"postgresql", "postgres", "mysql", "sqlite", "sqlite3"}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.BackupPath == "" {
		cfg.BackupPath = "db_backup"
	}
	if cfg.Connections == nil {
		cfg.Connections = map[string]Connection{}
	}
	if cfg.Engine.BatchSize == 0 {
		cfg.Engine.BatchSize = 10
	}
	if !v.IsSet("engine.batch_delay") {
		cfg.Engine.BatchDelay = 100 * time.Millisecond
	}
	if cfg.Engine.ActiveRetention == 0 {
		cfg.Engine.ActiveRetention = 5 * time.Minute
	}
	if cfg.Engine.ResultTTL == 0 {
		cfg.Engine.ResultTTL = 30 * time.Minute
	}
	if cfg.Engine.IntegrityThreshold == 0 {
		cfg.Engine.IntegrityThreshold = 0.8
	}
	if cfg.Engine.TempObjectPrefix == "" {
		cfg.Engine.TempObjectPrefix = "tmp_migration_"
	}
	if cfg.Progress.SuccessGrace == 0 {
		cfg.Progress.SuccessGrace = 30 * time.Second
	}
	if cfg.Progress.FailureGrace == 0 {
		cfg.Progress.FailureGrace = 60 * time.Second
	}
	if cfg.Validation.RuleTimeout == 0 {
		cfg.Validation.RuleTimeout = 30 * time.Second
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	for id, conn := range c.Connections {
		if !slices.Contains(supportedProviders, conn.Provider) {
			return fmt.Errorf("connection %s: unsupported database provider: %s. Supported providers: %v", id, conn.Provider, supportedProviders)
		}
		if conn.Database == "" && conn.URLEnv == "" {
			return fmt.Errorf("connection %s: either database or url_env must be set", id)
		}
	}

	if c.Engine.BatchSize < 1 {
		return fmt.Errorf("engine.batch_size must be at least 1, got %d", c.Engine.BatchSize)
	}
	if c.Engine.BatchDelay < 0 {
		return fmt.Errorf("engine.batch_delay cannot be negative")
	}
	if c.Engine.IntegrityThreshold <= 0 || c.Engine.IntegrityThreshold > 1 {
		return fmt.Errorf("engine.integrity_threshold must be in (0, 1], got %v", c.Engine.IntegrityThreshold)
	}
	if c.BackupPath == "" {
		return fmt.Errorf("backup_path cannot be empty")
	}

	return nil
}

// Connection returns the connection configured under id.
func (c *Config) Connection(id string) (Connection, bool) {
	conn, ok := c.Connections[id]
	return conn, ok
}

// ConnectionIDs returns the configured ids in sorted order.
func (c *Config) ConnectionIDs() []string {
	ids := make([]string, 0, len(c.Connections))
	for id := range c.Connections {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
