package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/GitHub-AmanBhardwaj/Calypso/internal/config"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/db"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/logging"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "calypso: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: %s <path_to_argo_data_directory>", filepath.Base(os.Args[0]))
	}
	dataDir := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, log); err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	store, err := db.Connect(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Infow("connected to postgres")

	stats, err := pipeline.New(store, log, cfg.DryRun).Run(ctx, dataDir)
	if err != nil {
		return err
	}

	log.Infow("ingestion complete",
		"files_processed", stats.FilesProcessed,
		"files_failed", stats.FilesFailed,
		"profiles_inserted", stats.ProfilesInserted,
		"profiles_skipped", stats.ProfilesSkipped,
		"profiles_failed", stats.ProfilesFailed,
		"measurements_inserted", stats.MeasurementsInserted,
	)
	return nil
}
