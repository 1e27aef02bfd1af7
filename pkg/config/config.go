package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings for sessions, logging and the CLI.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	SoftDelete SoftDeleteConfig `mapstructure:"soft_delete"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig describes the pool a Session opens.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres (lib/pq) or pgx
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Placeholder     string        `mapstructure:"placeholder"` // dollar or question
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

// SoftDeleteConfig sets the session-wide soft-delete default and the
// auditing column names.
type SoftDeleteConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	DeletedAtColumn     string `mapstructure:"deleted_at_column"`
	DeletedByIDColumn   string `mapstructure:"deleted_by_id_column"`
	DeletedByNameColumn string `mapstructure:"deleted_by_name_column"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, /path/to/file
}

var envRef = regexp.MustCompile(`^env\("([^"]+)"\)$`)

// Load reads .env (when present), the optional YAML file at path and
// DAL_-prefixed environment variables, in increasing precedence. An empty
// DSN falls back to DATABASE_URL.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// dsn: env("NAME") defers to another variable.
	if m := envRef.FindStringSubmatch(cfg.Database.DSN); m != nil {
		cfg.Database.DSN = os.Getenv(m[1])
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.placeholder", "dollar")
	v.SetDefault("database.slow_threshold", "200ms")

	v.SetDefault("soft_delete.enabled", false)
	v.SetDefault("soft_delete.deleted_at_column", "deleted_at")
	v.SetDefault("soft_delete.deleted_by_id_column", "deleted_by_id")
	v.SetDefault("soft_delete.deleted_by_name_column", "deleted_by_name")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
}

// Validate reports configuration that cannot produce a working session.
func (c *Config) Validate() error {
	return c.Database.Validate()
}

func (c *DatabaseConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("DSN is empty")
	}
	switch c.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	switch strings.ToLower(c.Placeholder) {
	case "", "dollar", "question":
	default:
		return fmt.Errorf("unsupported placeholder style %q", c.Placeholder)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("pool sizes must not be negative")
	}
	return nil
}
