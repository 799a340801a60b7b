// Package app holds configuration shared by the engine binaries.
package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds connection settings for the read-only catalog store,
// loadable from environment variables (RECS_ prefix), flags, or YAML
// config files.
type Config struct {
	DatabaseURL string        `usage:"PostgreSQL connection URL (RECS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ReadTimeout time.Duration `default:"3s" usage:"Upper bound for any single store query" flag:"read-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML
// config files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RECS",
		Files:     []string{"config.yaml", "/etc/recs/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set RECS_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps the standard DATABASE_URL variable used by
// managed platforms onto the RECS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
}
