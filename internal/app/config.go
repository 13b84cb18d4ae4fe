package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"45s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayToken   string        `envconfig:"GATEWAY_TOKEN"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`

	RedisAddr string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	WarmupCron       string `envconfig:"WARMUP_CRON" default:"*/10 * * * *"`
	WarmupWindowDays int    `envconfig:"WARMUP_WINDOW_DAYS" default:"7"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.GatewayBaseURL == "" {
		return nil, errors.New("gateway base url must be provided")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.WarmupWindowDays <= 0 {
		cfg.WarmupWindowDays = 7
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
