//go:build integration
// +build integration

package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/config"
	"github.com/homemic/sleep-server/internal/imports"
	"github.com/homemic/sleep-server/internal/ingest"
	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/pkg/database"
)

// Run with: go test -tags integration ./internal/sessions/
// Requires a reachable PostgreSQL (DATABASE_URL or DB_* env vars).
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), zap.NewNop())
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Skipf("migrate failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func cleanupSession(t *testing.T, repo *Repository, date time.Time) {
	t.Helper()
	t.Cleanup(func() {
		s, err := repo.GetByDate(context.Background(), date)
		if err == nil && s != nil {
			_ = repo.Delete(context.Background(), s.ID)
		}
	})
}

func TestStartSessionResetsExisting(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	first, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	closed, err := repo.CloseSession(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.WakeTime)
	require.NotNil(t, closed.DurationMin)

	require.NoError(t, repo.UpdateScore(ctx, first.ID, 88.5))

	again, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID, "same calendar date must keep the same session row")
	assert.Nil(t, again.WakeTime)
	assert.Nil(t, again.DurationMin)
	assert.Nil(t, again.EfficiencyScore)
	assert.NotNil(t, again.BedTime)
}

func TestCloseSessionDerivesDuration(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 11, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	s, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	closed, err := repo.CloseSession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, closed.DurationMin)
	assert.GreaterOrEqual(t, *closed.DurationMin, 0)
	assert.False(t, closed.Open())
}

func TestFillForDatePreservesStoredValues(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 12, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	started, err := repo.StartSession(ctx, date)
	require.NoError(t, err)
	require.NotNil(t, started.BedTime)

	importedBed := time.Date(2020, 1, 12, 22, 30, 0, 0, time.UTC)
	importedWake := time.Date(2020, 1, 13, 6, 30, 0, 0, time.UTC)
	dur := 480

	filled, err := repo.FillForDate(ctx, date, &importedBed, &importedWake, &dur)
	require.NoError(t, err)

	// Live bed time wins over the import; the null fields adopt import values.
	assert.WithinDuration(t, *started.BedTime, *filled.BedTime, time.Second)
	require.NotNil(t, filled.WakeTime)
	assert.WithinDuration(t, importedWake, *filled.WakeTime, time.Second)
	require.NotNil(t, filled.DurationMin)
	assert.Equal(t, 480, *filled.DurationMin)
}

func TestFillForDateCreatesWhenAbsent(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 13, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	bed := time.Date(2020, 1, 13, 23, 0, 0, 0, time.UTC)
	s, err := repo.FillForDate(ctx, date, &bed, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, s.BedTime)
	assert.Nil(t, s.WakeTime)
	assert.Nil(t, s.EfficiencyScore)
}

func TestHealthImportUpsertMergeRules(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	impRepo := imports.NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 14, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	s, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	hr := 58.0
	first, err := impRepo.Upsert(ctx, s.ID, "apple_health", map[string]int{"deep": 90, "rem": 100}, &hr, nil)
	require.NoError(t, err)

	hr2 := 72.0
	spo2 := 96.5
	second, err := impRepo.Upsert(ctx, s.ID, "apple_health", map[string]int{"deep": 80}, &hr2, &spo2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	// Stages are a snapshot and get replaced; vitals keep the first value.
	assert.Equal(t, map[string]int{"deep": 80}, second.Stages)
	require.NotNil(t, second.AvgHeartRate)
	assert.Equal(t, 58.0, *second.AvgHeartRate)
	require.NotNil(t, second.SpO2)
	assert.Equal(t, 96.5, *second.SpO2)
}

func TestDisturbanceTotalExcludesTalk(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ingRepo := ingest.NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	s, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	at := time.Date(2020, 1, 15, 2, 0, 0, 0, time.UTC)
	_, err = ingRepo.RecordEvent(ctx, s.ID, models.CategorySnore, at, 120, 0.9, nil)
	require.NoError(t, err)
	_, err = ingRepo.RecordEvent(ctx, s.ID, models.CategoryMovement, at, 60, 0.8, nil)
	require.NoError(t, err)
	_, err = ingRepo.RecordEvent(ctx, s.ID, models.CategoryTalk, at, 600, 0.7, nil)
	require.NoError(t, err)

	total, err := ingRepo.DisturbanceTotal(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total.Count)
	assert.InDelta(t, 3.0, total.Minutes, 0.001)
}

func TestSessionExistsDistinguishesUnknownID(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ingRepo := ingest.NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 17, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	exists, err := ingRepo.SessionExists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists, "an unknown id must not look like an empty session")

	s, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	exists, err = ingRepo.SessionExists(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteCascadesToChildren(t *testing.T) {
	pool := testPool(t)
	repo := NewRepository(pool)
	ingRepo := ingest.NewRepository(pool)
	ctx := context.Background()
	date := time.Date(2020, 1, 16, 0, 0, 0, 0, time.UTC)
	cleanupSession(t, repo, date)

	s, err := repo.StartSession(ctx, date)
	require.NoError(t, err)

	_, err = ingRepo.RecordEvent(ctx, s.ID, models.CategoryCough, time.Now().UTC(), 30, 0.5, nil)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, s.ID))

	_, err = repo.GetSession(ctx, s.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Inserting against the deleted session must surface as not-found,
	// not as a raw constraint error.
	_, err = ingRepo.RecordEvent(ctx, s.ID, models.CategoryCough, time.Now().UTC(), 30, 0.5, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
