// Package config holds the application settings shared by all
// subcommands. Settings come from STAFFELI_* environment variables
// (optionally via a .env file) and can be overridden by flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Defaults for the fetch pipeline.
const (
	DefaultWorkers    = 30
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
	DefaultJitter     = 500 * time.Millisecond
)

// Config holds application settings.
type Config struct {
	// APIURL is the root of the Canvas instance.
	APIURL string `envconfig:"API_URL" default:"https://absalon.ku.dk/"`
	// TokenPath is the file holding the Canvas API token. Empty
	// means ~/.canvas.token.
	TokenPath string `envconfig:"TOKEN_PATH"`
	// Token is the API token itself; resolved from TokenPath when
	// not set directly.
	Token string `envconfig:"TOKEN"`
	// Workers caps concurrent in-flight fetches per phase.
	Workers int `envconfig:"WORKERS" default:"30"`
	// MaxRetries bounds attempts per rate-limited remote call.
	MaxRetries int `envconfig:"MAX_RETRIES" default:"3"`
	// BaseDelay is the backoff before a retry; a uniform random
	// jitter up to Jitter is added on top.
	BaseDelay time.Duration `envconfig:"BASE_DELAY" default:"2s"`
	Jitter    time.Duration `envconfig:"JITTER" default:"500ms"`
}

// Load reads configuration from the environment, sourcing envFile
// first when it exists.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}
	var cfg Config
	if err := envconfig.Process("staffeli", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

// ResolveToken fills in Token from TokenPath (or ~/.canvas.token) if
// it was not provided directly.
func (c *Config) ResolveToken() error {
	if c.Token != "" {
		return nil
	}
	path := c.TokenPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("locate home directory: %w", err)
		}
		path = filepath.Join(home, ".canvas.token")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("missing Canvas token at %s: %w", path, err)
	}
	c.Token = strings.TrimSpace(string(data))
	if c.Token == "" {
		return fmt.Errorf("empty Canvas token at %s", path)
	}
	return nil
}
