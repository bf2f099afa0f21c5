package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the coordinator.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sync     SyncConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/mochi-sync.db"`
}

// RedisConfig holds the optional Redis wiring for audit streaming and
// status publishing. Disabled by default; the coordinator is fully
// functional without it.
type RedisConfig struct {
	Enabled           bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Addr              string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password          string `env:"REDIS_PASSWORD"`
	DB                int    `env:"REDIS_DB" envDefault:"0"`
	AuditStream       string `env:"REDIS_AUDIT_STREAM" envDefault:"mochi:audit"`
	AuditStreamMaxLen int64  `env:"REDIS_AUDIT_STREAM_MAXLEN" envDefault:"10000"`
	StatusKey         string `env:"REDIS_STATUS_KEY" envDefault:"mochi:status"`
}

// SyncConfig holds sync engine and scheduler behavior.
type SyncConfig struct {
	Interval        time.Duration `env:"SYNC_INTERVAL" envDefault:"1m"`
	SweepInterval   time.Duration `env:"SYNC_SWEEP_INTERVAL" envDefault:"15s"`
	Concurrency     int           `env:"SYNC_CONCURRENCY" envDefault:"4"`
	ServersFile     string        `env:"SERVERS_FILE" envDefault:"servers.yaml"`
	FileShimDir     string        `env:"BRIDGE_FILE_SHIM_DIR"` // dev only: file-backed bridges instead of live connections
	BootstrapAPIKey string        `env:"BOOTSTRAP_API_KEY"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load loads configuration from a .env file (if present) and the
// environment.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, fmt.Errorf("parsing redis config: %w", err)
	}
	if err := env.Parse(&cfg.Sync); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}
	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (valid: sqlite3, postgres)", c.Database.Driver)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.Sync.SweepInterval <= 0 {
		return fmt.Errorf("SYNC_SWEEP_INTERVAL must be positive")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("SYNC_CONCURRENCY must be positive")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when REDIS_ENABLED is set")
	}
	return nil
}

// UseFileShim reports whether file-backed bridges should replace live
// server connections.
func (c *Config) UseFileShim() bool {
	return c.Sync.FileShimDir != ""
}
