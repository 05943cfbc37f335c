package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultMigrationsDir  = "migrations"
	defaultConnectTimeout = 30 * time.Second
)

// Config holds environment-driven settings for an ingestion run.
type Config struct {
	DatabaseURL    string
	Env            string
	MigrationsDir  string
	ConnectTimeout time.Duration
	DryRun         bool
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Config{
		Env:            "development",
		MigrationsDir:  defaultMigrationsDir,
		ConnectTimeout: defaultConnectTimeout,
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	if env := strings.TrimSpace(os.Getenv("CALYPSO_ENV")); env != "" {
		cfg.Env = env
	}

	if dir := strings.TrimSpace(os.Getenv("CALYPSO_MIGRATIONS_DIR")); dir != "" {
		cfg.MigrationsDir = dir
	}

	if v := strings.TrimSpace(os.Getenv("CALYPSO_CONNECT_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid CALYPSO_CONNECT_TIMEOUT: %w", err)
		}
		cfg.ConnectTimeout = d
	}

	dryRun := strings.TrimSpace(os.Getenv("CALYPSO_DRY_RUN"))
	cfg.DryRun = dryRun == "1" || strings.EqualFold(dryRun, "true")

	return cfg, nil
}
