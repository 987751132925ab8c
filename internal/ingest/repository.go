package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homemic/sleep-server/internal/models"
)

const fkViolation = "23503"

// Repository appends disturbance events and environmental readings and
// serves the aggregate queries the scorer and dashboard depend on.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an ingest repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordEvent appends a DisturbanceEvent. Events are immutable once created.
func (r *Repository) RecordEvent(ctx context.Context, sessionID uuid.UUID, category string, at time.Time, durationSec, confidence float64, metadata json.RawMessage) (*models.DisturbanceEvent, error) {
	e := &models.DisturbanceEvent{
		SessionID:   sessionID,
		Category:    category,
		RecordedAt:  at,
		DurationSec: durationSec,
		Confidence:  confidence,
		Metadata:    metadata,
	}
	const query = `INSERT INTO disturbance_events (session_id, category, recorded_at, duration_sec, confidence, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, sessionID, category, at, durationSec, confidence, metadata).
		Scan(&e.ID, &e.CreatedAt)
	if isForeignKeyViolation(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}
	return e, nil
}

// RecordReading appends an EnvironmentalReading. Each measurement may be
// absent independently when the sensor bridge failed to answer for it.
func (r *Repository) RecordReading(ctx context.Context, sessionID uuid.UUID, at time.Time, co2, temperature, humidity *float64) (*models.EnvironmentalReading, error) {
	rd := &models.EnvironmentalReading{
		SessionID:   sessionID,
		RecordedAt:  at,
		CO2:         co2,
		Temperature: temperature,
		Humidity:    humidity,
	}
	const query = `INSERT INTO environmental_readings (session_id, recorded_at, co2, temperature, humidity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, sessionID, at, co2, temperature, humidity).
		Scan(&rd.ID, &rd.CreatedAt)
	if isForeignKeyViolation(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record reading: %w", err)
	}
	return rd, nil
}

// SessionExists reports whether a session row exists. The aggregate queries
// below return zero rows for any id; callers distinguishing "no data yet"
// from "no such session" check here first.
func (r *Repository) SessionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("session exists: %w", err)
	}
	return exists, nil
}

// DisturbanceTotal returns the count and summed minutes of scoring-relevant
// events (snore, movement, cough). Informational categories such as talk are
// deliberately excluded so they never move the efficiency score.
func (r *Repository) DisturbanceTotal(ctx context.Context, sessionID uuid.UUID) (*models.DisturbanceTotal, error) {
	const query = `SELECT COUNT(*), COALESCE(SUM(duration_sec), 0) / 60.0
		FROM disturbance_events
		WHERE session_id = $1 AND category = ANY($2)`
	var t models.DisturbanceTotal
	err := r.pool.QueryRow(ctx, query, sessionID, models.ScoringCategories).
		Scan(&t.Count, &t.Minutes)
	if err != nil {
		return nil, fmt.Errorf("disturbance total: %w", err)
	}
	return &t, nil
}

// EnvironmentalSummary returns min/avg/max per measurement over a session's
// readings. SQL aggregates skip NULLs, so an absent measurement never drags
// an average toward zero.
func (r *Repository) EnvironmentalSummary(ctx context.Context, sessionID uuid.UUID) (*models.EnvironmentalSummary, error) {
	const query = `SELECT
			MIN(co2), AVG(co2), MAX(co2),
			MIN(temperature), AVG(temperature), MAX(temperature),
			MIN(humidity), AVG(humidity), MAX(humidity)
		FROM environmental_readings WHERE session_id = $1`
	var s models.EnvironmentalSummary
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&s.CO2.Min, &s.CO2.Avg, &s.CO2.Max,
		&s.Temperature.Min, &s.Temperature.Avg, &s.Temperature.Max,
		&s.Humidity.Min, &s.Humidity.Avg, &s.Humidity.Max,
	)
	if err != nil {
		return nil, fmt.Errorf("environmental summary: %w", err)
	}
	return &s, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == fkViolation
}
