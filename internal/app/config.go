package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the daemon configuration, loadable from environment variables
// (PKIT_ prefix), flags, or YAML config files.
type Config struct {
	DatabaseURL string `usage:"PostgreSQL connection URL (PKIT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	CatalogURL  string `default:"http://localhost:8081" usage:"Catalog service base URL" flag:"catalog-url"`

	Products []string `usage:"Product identifiers to register at startup"`

	RefreshTTL       time.Duration `default:"24h" usage:"Catalog metadata validity window" flag:"refresh-ttl"`
	RegisterInterval time.Duration `default:"1m"  usage:"Interval between registration sweeps (drives catalog retries)" flag:"register-interval"`

	Sandbox SandboxConfig
}

// SandboxConfig controls the built-in sandbox purchase channel.
type SandboxConfig struct {
	Latency time.Duration `default:"500ms" usage:"Sandbox channel event delivery latency"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PKIT",
		Files:     []string{"config.yaml", "/etc/purchased/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	// Platform-provided variable names (Railway, Render, etc.).
	if cfg.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			cfg.DatabaseURL = v
		}
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PKIT_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}
