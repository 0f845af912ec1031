package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for ragsync.
type Config struct {
	// Local side.
	RootDir    string   `env:"SYNC_ROOT_DIR"`
	Extensions []string `env:"SYNC_EXTENSIONS" envSeparator:","`

	// How often a sync cycle runs.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"24h"`

	// Content hash algorithm used for change detection.
	HashAlgorithm string `env:"SYNC_HASH_ALGORITHM" envDefault:"sha256"`

	// Record store and session cache locations. Empty values default to
	// ~/.ragsync/records.db and ~/.ragsync/state.db after Load.
	DBPath      string `env:"SYNC_DB_PATH"`
	StateDBPath string `env:"SYNC_STATE_DB_PATH"`

	// Remote document store.
	BaseURL  string `env:"RAGFLOW_URL"`
	Email    string `env:"RAGFLOW_EMAIL"`
	Password string `env:"RAGFLOW_PASSWORD"`
	KBID     string `env:"RAGFLOW_KB_ID"`

	// ParseDocuments controls whether uploaded documents get a parse
	// trigger. PollParseStatus additionally polls the listing for parse
	// completion; some deployments never report completion, so it is
	// opt-in.
	ParseDocuments  bool `env:"RAGFLOW_PARSE_DOCUMENTS" envDefault:"true"`
	PollParseStatus bool `env:"RAGFLOW_POLL_PARSE_STATUS" envDefault:"false"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
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

// Load reads configuration from environment variables. It first attempts
// to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.normalizeExtensions()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The scanner keys records by absolute path, so the root must be
	// absolute before any walk happens.
	absRoot, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving root dir to absolute path: %w", err)
	}

	cfg.RootDir = absRoot

	if cfg.DBPath == "" || cfg.StateDBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}

		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(home, ".ragsync", "records.db")
		}

		if cfg.StateDBPath == "" {
			cfg.StateDBPath = filepath.Join(home, ".ragsync", "state.db")
		}
	}

	return cfg, nil
}

// normalizeExtensions lowercases extensions and ensures each carries a
// leading dot, so "md" and ".MD" both match "*.md".
func (c *Config) normalizeExtensions() {
	out := c.Extensions[:0]

	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		out = append(out, ext)
	}

	c.Extensions = out
}

// Validate checks that every required field is present and sane.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RootDir, validation.Required),
		validation.Field(&c.Extensions, validation.Required, validation.Length(1, 0)),
		validation.Field(&c.SyncInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.HashAlgorithm, validation.Required, validation.In("sha256", "md5")),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Email, validation.Required),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.KBID, validation.Required),
	)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
