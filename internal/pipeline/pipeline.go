package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/GitHub-AmanBhardwaj/Calypso/internal/argo"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/db"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/models"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	ProfileExists(ctx context.Context, platform, cycle int) (bool, error)
	SaveProfile(ctx context.Context, profile models.Profile, measurements []models.Measurement) (int64, error)
}

// Stats aggregates the outcome of one ingestion run.
type Stats struct {
	FilesProcessed       int
	FilesFailed          int
	ProfilesInserted     int
	ProfilesSkipped      int
	ProfilesFailed       int
	MeasurementsInserted int
}

// Pipeline drives discovery, decoding, quality control and loading over one
// data directory. Files are processed sequentially; a failed file or
// profile never aborts the run.
type Pipeline struct {
	store  Store
	log    *zap.SugaredLogger
	dryRun bool

	locate func(dir string) ([]string, error)
	decode func(path string) ([]models.RawProfile, error)
}

// New builds a pipeline over the given store.
func New(store Store, log *zap.SugaredLogger, dryRun bool) *Pipeline {
	return &Pipeline{
		store:  store,
		log:    log,
		dryRun: dryRun,
		locate: argo.FindProfileFiles,
		decode: argo.DecodeFile,
	}
}

// Run ingests every profile file under dir and returns the aggregate
// counts. It returns an error only for run-fatal conditions: a missing
// directory or context cancellation between work items.
func (p *Pipeline) Run(ctx context.Context, dir string) (Stats, error) {
	var stats Stats

	files, err := p.locate(dir)
	if err != nil {
		return stats, err
	}
	p.log.Infow("discovered profile files", "dir", dir, "count", len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		profiles, err := p.decode(file)
		if err != nil {
			stats.FilesFailed++
			p.log.Errorw("failed to decode file", "file", file, "error", err)
			continue
		}
		stats.FilesProcessed++

		for _, rp := range profiles {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			p.ingestProfile(ctx, file, rp, &stats)
		}
	}

	return stats, nil
}

func (p *Pipeline) ingestProfile(ctx context.Context, file string, rp models.RawProfile, stats *Stats) {
	prof := rp.Profile
	log := p.log.With(
		"file", file,
		"platform_number", prof.PlatformNumber,
		"cycle_number", prof.CycleNumber,
	)

	exists, err := p.store.ProfileExists(ctx, prof.PlatformNumber, prof.CycleNumber)
	if err != nil {
		stats.ProfilesFailed++
		log.Errorw("existence check failed", "error", err)
		return
	}
	if exists {
		stats.ProfilesSkipped++
		log.Debugw("profile already stored, skipping")
		return
	}

	measurements := argo.FilterLevels(rp.Levels)

	if p.dryRun {
		stats.ProfilesInserted++
		stats.MeasurementsInserted += len(measurements)
		log.Infow("dry-run: would insert profile", "measurements", len(measurements))
		return
	}

	if _, err := p.store.SaveProfile(ctx, prof, measurements); err != nil {
		if errors.Is(err, db.ErrDuplicateProfile) {
			// Lost the check-then-insert race; the unique constraint
			// already guarantees a single copy is stored.
			stats.ProfilesSkipped++
			log.Debugw("profile inserted concurrently, skipping")
			return
		}
		stats.ProfilesFailed++
		log.Errorw("failed to load profile", "error", err)
		return
	}

	stats.ProfilesInserted++
	stats.MeasurementsInserted += len(measurements)
	log.Infow("profile loaded", "measurements", len(measurements))
}
