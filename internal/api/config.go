// Package api serves the sheets REST API consumed by the dashboard.
package api

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends selectable through API_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds runtime configuration for the API server.
type Config struct {
	Addr           string        `envconfig:"API_ADDR" default:":8081"`
	ReadTimeout    time.Duration `envconfig:"API_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	RequestTimeout time.Duration `envconfig:"API_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	Store      string `envconfig:"API_STORE" default:"memory"`
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"10"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	TokenTTL time.Duration `envconfig:"API_TOKEN_TTL" default:"12h"`

	AdminUsername string `envconfig:"API_ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"API_ADMIN_PASSWORD" default:"password"`
	AdminName     string `envconfig:"API_ADMIN_NAME" default:"מנהל המערכת"`

	CORSOrigins []string `envconfig:"API_CORS_ORIGINS" default:"http://localhost:8080"`
	RateLimit   int      `envconfig:"API_RATE_LIMIT_PER_MINUTE" default:"600"`
	MaxPageSize int      `envconfig:"API_MAX_PAGE_SIZE" default:"500"`

	// WorkerMetricsAddr is where cmd/worker serves /metrics. Empty disables it.
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.PGDSN == "" {
			return nil, errors.New("PG_DSN is required when API_STORE=postgres")
		}
	default:
		return nil, errors.New("API_STORE must be memory or postgres")
	}
	if cfg.MaxPageSize <= 0 {
		return nil, errors.New("max page size must be positive")
	}
	return &cfg, nil
}
