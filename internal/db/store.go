package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GitHub-AmanBhardwaj/Calypso/internal/models"
)

// ErrDuplicateProfile reports a natural-key collision on insert. The
// UNIQUE(platform_number, cycle_number) constraint is the final word on
// duplicates; callers treat this outcome as a skip, not a failure.
var ErrDuplicateProfile = errors.New("profile already exists")

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store wraps database access for profiles and measurements.
type Store struct {
	pool Pool
}

// Connect opens a pgx pool and verifies connectivity before returning.
// A failure here is fatal to the run; the pipeline never starts without a
// reachable store.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const profileExistsSQL = `
SELECT EXISTS (
    SELECT 1 FROM argo_profiles
    WHERE platform_number = $1 AND cycle_number = $2
)`

// ProfileExists reports whether a profile with the given natural key is
// already stored. This is a fast-path check only; SaveProfile still handles
// the constraint-violation path for races.
func (s *Store) ProfileExists(ctx context.Context, platform, cycle int) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, profileExistsSQL, platform, cycle).Scan(&exists); err != nil {
		return false, fmt.Errorf("check profile %d/%d: %w", platform, cycle, err)
	}
	return exists, nil
}

const insertProfileSQL = `
INSERT INTO argo_profiles (platform_number, cycle_number, profile_timestamp, latitude, longitude)
VALUES ($1, $2, $3, $4, $5)
RETURNING profile_id`

var measurementColumns = []string{"profile_id", "pressure_dbar", "temperature_celsius", "salinity_psu"}

// SaveProfile stores one profile row and all its measurements in a single
// transaction: either everything for this profile becomes visible or
// nothing does. Measurements are bulk-loaded in one round-trip and keep
// their source depth order. Returns ErrDuplicateProfile when the natural
// key is already taken.
func (s *Store) SaveProfile(ctx context.Context, profile models.Profile, measurements []models.Measurement) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	var profileID int64
	err = tx.QueryRow(ctx, insertProfileSQL,
		profile.PlatformNumber,
		profile.CycleNumber,
		profile.Timestamp,
		profile.Latitude,
		profile.Longitude,
	).Scan(&profileID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateProfile
		}
		return 0, fmt.Errorf("insert profile %d/%d: %w", profile.PlatformNumber, profile.CycleNumber, err)
	}

	if len(measurements) > 0 {
		rows := make([][]any, 0, len(measurements))
		for _, m := range measurements {
			rows = append(rows, []any{profileID, m.PressureDbar, m.TemperatureCelsius, m.SalinityPSU})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"ocean_measurements"}, measurementColumns, pgx.CopyFromRows(rows)); err != nil {
			return 0, fmt.Errorf("bulk insert %d measurements for profile %d/%d: %w",
				len(measurements), profile.PlatformNumber, profile.CycleNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit profile %d/%d: %w", profile.PlatformNumber, profile.CycleNumber, err)
	}
	return profileID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
