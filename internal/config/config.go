// Package config loads paper-sync configuration from environment
// variables, with an optional .env file for development.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for paper-sync.
type Config struct {
	// Sync server endpoint.
	Host   string `env:"SYNC_HOST"`
	Port   int    `env:"SYNC_PORT" envDefault:"443"`
	UseTLS bool   `env:"SYNC_USE_TLS" envDefault:"true"`

	// Bearer token passed opaquely to the transport. Empty means
	// anonymous.
	AuthToken string `env:"SYNC_AUTH_TOKEN"`

	// Directory holding the replica database and PDF blobs. Defaults to
	// ~/.paper-sync/.
	DataDir string `env:"DATA_DIR"`

	// Interval between automatic sync cycles. Zero disables auto-sync.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`

	// Device name this client identifies as. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the auth token to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "paper-sync"
		}
		cfg.DeviceName = hostname
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".paper-sync")
	}

	// Resolve DataDir to an absolute path at startup so the store and
	// blob directory stay put if the process later changes directory.
	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}
	cfg.DataDir = absDir

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("SYNC_HOST is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SYNC_PORT must be in 1..65535, got %d", c.Port)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative")
	}
	return nil
}

// DatabasePath returns the path of the replica database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// BlobDir returns the directory holding PDF payloads.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "pdfs")
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
