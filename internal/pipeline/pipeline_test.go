package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GitHub-AmanBhardwaj/Calypso/internal/argo"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/db"
	"github.com/GitHub-AmanBhardwaj/Calypso/internal/models"
)

func f64(v float64) *float64 { return &v }

type fakeStore struct {
	saved     map[string][]models.Measurement
	existsErr error
	saveErr   error
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string][]models.Measurement)}
}

func naturalKey(platform, cycle int) string {
	return fmt.Sprintf("%d/%d", platform, cycle)
}

func (f *fakeStore) ProfileExists(_ context.Context, platform, cycle int) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.saved[naturalKey(platform, cycle)]
	return ok, nil
}

func (f *fakeStore) SaveProfile(_ context.Context, p models.Profile, ms []models.Measurement) (int64, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	key := naturalKey(p.PlatformNumber, p.CycleNumber)
	if _, ok := f.saved[key]; ok {
		return 0, db.ErrDuplicateProfile
	}
	f.saved[key] = ms
	f.nextID++
	return f.nextID, nil
}

func goodLevels(n int) []models.RawLevel {
	levels := make([]models.RawLevel, 0, n)
	for i := 0; i < n; i++ {
		levels = append(levels, models.RawLevel{
			Pressure:    float64(i+1) * 5,
			Temperature: f64(20 - float64(i)),
			Salinity:    f64(35 + float64(i)*0.1),
			TempQC:      '1',
			SalQC:       '1',
		})
	}
	return levels
}

func twoProfileFile() []models.RawProfile {
	// One fully QC-good profile, one with a single bad temperature flag
	// out of five levels.
	second := goodLevels(5)
	second[2].TempQC = '4'
	return []models.RawProfile{
		{Profile: models.Profile{PlatformNumber: 2902746, CycleNumber: 1}, Levels: goodLevels(3)},
		{Profile: models.Profile{PlatformNumber: 2902746, CycleNumber: 2}, Levels: second},
	}
}

func newTestPipeline(store Store) *Pipeline {
	return New(store, zap.NewNop().Sugar(), false)
}

func TestRun_InsertsProfilesAndAppliesQC(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"float.nc"}, nil }
	p.decode = func(string) ([]models.RawProfile, error) { return twoProfileFile(), nil }

	stats, err := p.Run(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 2, stats.ProfilesInserted)
	assert.Equal(t, 8, stats.MeasurementsInserted)

	// Second profile keeps all five rows; exactly one temperature is absent.
	ms := store.saved[naturalKey(2902746, 2)]
	require.Len(t, ms, 5)
	var nilTemps int
	for _, m := range ms {
		if m.TemperatureCelsius == nil {
			nilTemps++
		}
		assert.Greater(t, m.PressureDbar, 0.0)
	}
	assert.Equal(t, 1, nilTemps)
}

func TestRun_ReingestIsIdempotent(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"float.nc"}, nil }
	p.decode = func(string) ([]models.RawProfile, error) { return twoProfileFile(), nil }

	_, err := p.Run(context.Background(), "data")
	require.NoError(t, err)
	firstContents := len(store.saved)

	stats, err := p.Run(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, 0, stats.ProfilesInserted)
	assert.Equal(t, 0, stats.MeasurementsInserted)
	assert.Equal(t, 2, stats.ProfilesSkipped)
	assert.Equal(t, firstContents, len(store.saved))
}

func TestRun_CorruptFileDoesNotAbortRun(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"bad.nc", "good.nc"}, nil }
	p.decode = func(path string) ([]models.RawProfile, error) {
		if path == "bad.nc" {
			return nil, &argo.DecodeError{File: path, Err: errors.New("not a netcdf file")}
		}
		return twoProfileFile(), nil
	}

	stats, err := p.Run(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.FilesProcessed)
	assert.Equal(t, 2, stats.ProfilesInserted)
}

func TestRun_DuplicateRaceCountsAsSkip(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"float.nc"}, nil }
	// Both calls decode the same profile; the fake store raises the
	// unique-violation equivalent on the second insert even though the
	// pre-check never saw it.
	p.decode = func(string) ([]models.RawProfile, error) {
		return []models.RawProfile{
			{Profile: models.Profile{PlatformNumber: 1, CycleNumber: 1}, Levels: goodLevels(2)},
		}, nil
	}

	_, err := p.Run(context.Background(), "data")
	require.NoError(t, err)

	p2 := newTestPipeline(&raceStore{inner: store})
	p2.locate = p.locate
	p2.decode = p.decode

	stats, err := p2.Run(context.Background(), "data")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ProfilesSkipped)
	assert.Equal(t, 0, stats.ProfilesFailed)
}

// raceStore reports the profile as new but fails the insert with the
// duplicate sentinel, simulating a concurrent writer winning the race.
type raceStore struct {
	inner *fakeStore
}

func (r *raceStore) ProfileExists(context.Context, int, int) (bool, error) {
	return false, nil
}

func (r *raceStore) SaveProfile(ctx context.Context, p models.Profile, ms []models.Measurement) (int64, error) {
	return r.inner.SaveProfile(ctx, p, ms)
}

func TestRun_LoadFailureCountsAndContinues(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("constraint violation")
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"float.nc"}, nil }
	p.decode = func(string) ([]models.RawProfile, error) { return twoProfileFile(), nil }

	stats, err := p.Run(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ProfilesFailed)
	assert.Equal(t, 0, stats.ProfilesInserted)
}

func TestRun_ExistenceCheckFailureCountsProfile(t *testing.T) {
	store := newFakeStore()
	store.existsErr = errors.New("connection reset")
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"float.nc"}, nil }
	p.decode = func(string) ([]models.RawProfile, error) { return twoProfileFile(), nil }

	stats, err := p.Run(context.Background(), "data")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ProfilesFailed)
}

func TestRun_MissingDirectoryIsFatal(t *testing.T) {
	p := newTestPipeline(newFakeStore())

	_, err := p.Run(context.Background(), "/definitely/not/here")
	assert.True(t, errors.Is(err, argo.ErrDirNotFound))
}

func TestRun_CancelledContextStopsBetweenFiles(t *testing.T) {
	store := newFakeStore()
	p := newTestPipeline(store)
	p.locate = func(string) ([]string, error) { return []string{"a.nc", "b.nc"}, nil }
	p.decode = func(string) ([]models.RawProfile, error) { return twoProfileFile(), nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "data")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, store.saved)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	store := newFakeStore()
	p := New(store, zap.NewNop().Sugar(), true)
	p.locate = func(string) ([]string, error) { return []string{"float.nc"}, nil }
	p.decode = func(string) ([]models.RawProfile, error) { return twoProfileFile(), nil }

	stats, err := p.Run(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ProfilesInserted)
	assert.Equal(t, 8, stats.MeasurementsInserted)
	assert.Empty(t, store.saved)
}
