package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration, populated from the environment.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Approval ApprovalConfig
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Name        string `env:"SERVICE_NAME" envDefault:"be-travel-approvals"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" envDefault:"8086"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// External approval actions (phone-proof webhook path) are rate limited.
	ActRatePerMinute int `env:"SERVER_ACT_RATE_PER_MINUTE" envDefault:"120"`
	ActRateBurst     int `env:"SERVER_ACT_RATE_BURST" envDefault:"20"`
}

// DatabaseConfig holds Postgres connection pool settings.
type DatabaseConfig struct {
	Host        string        `env:"DB_HOST" envDefault:"localhost"`
	Port        int           `env:"DB_PORT" envDefault:"5432"`
	User        string        `env:"DB_USER" envDefault:"postgres"`
	Password    string        `env:"DB_PASSWORD" envDefault:""`
	Database    string        `env:"DB_NAME" envDefault:"travel_approvals"`
	SSLMode     string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns    int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnTime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxIdleTime time.Duration `env:"DB_MAX_CONN_IDLE" envDefault:"30m"`
	HealthCheck time.Duration `env:"DB_HEALTHCHECK_PERIOD" envDefault:"1m"`
}

// NATSConfig holds notification transport settings. An empty URL disables
// publishing entirely (approval operations never depend on it).
type NATSConfig struct {
	URL string `env:"NATS_URL" envDefault:""`
}

// ApprovalConfig holds chain-building policy knobs. Amounts are in minor
// currency units. A zero threshold disables that escalation level.
type ApprovalConfig struct {
	SeniorDirectorMinAmount int64 `env:"APPROVAL_SENIOR_DIRECTOR_MIN_AMOUNT" envDefault:"50000000"`
	ExecutiveMinAmount      int64 `env:"APPROVAL_EXECUTIVE_MIN_AMOUNT" envDefault:"250000000"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
