package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds AegisGate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Admin     AdminConfig     `yaml:"admin"`
	Responder ResponderConfig `yaml:"responder"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8000"
}

type StorageConfig struct {
	Path         string        `yaml:"path"` // SQLite database file
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
	DisableWAL   bool          `yaml:"disable_wal"`
}

type AdminConfig struct {
	Token    string `yaml:"token"`     // static token for /api/admin routes; empty disables them
	TokenEnv string `yaml:"token_env"` // env var that overrides Token when set
}

type ResponderConfig struct {
	Model   string        `yaml:"model"`   // model name reported in replies
	Timeout time.Duration `yaml:"timeout"` // upper bound on one Generate call
}

type AuditConfig struct {
	QueueSize     int    `yaml:"queue_size"`
	Workers       int    `yaml:"workers"`
	MirrorPath    string `yaml:"mirror_path"`    // optional JSONL mirror of every entry
	RetentionDays int    `yaml:"retention_days"` // 0 disables the retention sweep
	SweepSchedule string `yaml:"sweep_schedule"` // cron spec for the retention sweep
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration with no file or env applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			applyDefaults(cfg)
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/aegisgate.db"
	}
	if cfg.Storage.MaxOpenConns <= 0 {
		cfg.Storage.MaxOpenConns = 10
	}
	if cfg.Storage.MaxIdleConns <= 0 {
		cfg.Storage.MaxIdleConns = 5
	}
	if cfg.Storage.BusyTimeout <= 0 {
		cfg.Storage.BusyTimeout = 5 * time.Second
	}

	if cfg.Admin.TokenEnv == "" {
		cfg.Admin.TokenEnv = "AEGISGATE_ADMIN_TOKEN"
	}

	if cfg.Responder.Model == "" {
		cfg.Responder.Model = "mock-llm-v1"
	}
	if cfg.Responder.Timeout <= 0 {
		cfg.Responder.Timeout = 10 * time.Second
	}

	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
	if cfg.Audit.SweepSchedule == "" {
		cfg.Audit.SweepSchedule = "@hourly"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "aegisgate"
	}
}

// applyEnvOverrides lets deploy environments override the file without editing it.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEGISGATE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AEGISGATE_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if cfg.Admin.TokenEnv != "" {
		if v := os.Getenv(cfg.Admin.TokenEnv); v != "" {
			cfg.Admin.Token = v
		}
	}
}
