package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server.
type Config struct {
	Env     string `envconfig:"ENV" default:"development"`
	Addr    string `envconfig:"ADDR" default:":8080"`
	DBPath  string `envconfig:"DB" default:"arsenal.sqlite3"`
	LogPath string `envconfig:"LOG"`

	AdminEmail string        `envconfig:"ADMIN_EMAIL" default:"admin@arsenal.local"`
	TokenTTL   time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	// AuthRateLimit caps login and registration attempts per client IP per minute.
	AuthRateLimit int `envconfig:"AUTH_RATE_LIMIT" default:"20"`
}

// Load reads configuration from ARSENAL_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("arsenal", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address must be set")
	}
	if c.DBPath == "" {
		return errors.New("database path must be set")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.AuthRateLimit <= 0 {
		return errors.New("auth rate limit must be positive")
	}
	return nil
}

// IsProduction returns true when the server runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
