package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homemic/sleep-server/internal/models"
)

const sessionColumns = `id, session_date, bed_time, wake_time, duration_min, efficiency_score, notes, created_at, updated_at`

// Repository handles session persistence. One session exists per calendar
// date; the two upsert paths deliberately diverge: StartSession resets an
// existing session, FillForDate only fills null fields.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Date, &s.BedTime, &s.WakeTime, &s.DurationMin,
		&s.EfficiencyScore, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// StartSession creates the session for date, or resets an existing one to
// the open state: wake time, duration, and score are cleared, bed time is
// refreshed to now. Restarting tracking for the same night is expected, so
// this is idempotent-with-reset rather than reject-on-conflict.
func (r *Repository) StartSession(ctx context.Context, date time.Time) (*models.Session, error) {
	const query = `INSERT INTO sessions (session_date, bed_time)
		VALUES ($1, now())
		ON CONFLICT (session_date) DO UPDATE
		SET bed_time = now(), wake_time = NULL, duration_min = NULL,
		    efficiency_score = NULL, updated_at = now()
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, query, models.DateOf(date)))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// CloseSession records the wake time and derives duration in whole minutes,
// clamped to be non-negative. A session without a bed time closes with
// duration left unset; scoring treats that as degraded data, not an error.
func (r *Repository) CloseSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const query = `UPDATE sessions
		SET wake_time = now(),
		    duration_min = CASE WHEN bed_time IS NULL THEN NULL
		        ELSE GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (now() - bed_time)) / 60))::int END,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	return s, nil
}

// FillForDate resolves or creates the session for date without resetting
// anything: for bed time, wake time, and duration the stored non-null value
// always wins and the incoming value only fills a gap. This is the import
// precedence rule: live-captured data is never overwritten by a later bulk
// import.
func (r *Repository) FillForDate(ctx context.Context, date time.Time, bedTime, wakeTime *time.Time, durationMin *int) (*models.Session, error) {
	const query = `INSERT INTO sessions (session_date, bed_time, wake_time, duration_min)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_date) DO UPDATE
		SET bed_time = COALESCE(sessions.bed_time, EXCLUDED.bed_time),
		    wake_time = COALESCE(sessions.wake_time, EXCLUDED.wake_time),
		    duration_min = COALESCE(sessions.duration_min, EXCLUDED.duration_min),
		    updated_at = now()
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, query, models.DateOf(date), bedTime, wakeTime, durationMin))
	if err != nil {
		return nil, fmt.Errorf("fill session: %w", err)
	}
	return s, nil
}

// GetSession returns the bare session row by id.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// GetByDate returns the session for a calendar date, or nil without error
// when no session exists yet. Callers must distinguish the two.
func (r *Repository) GetByDate(ctx context.Context, date time.Time) (*models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE session_date = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, models.DateOf(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by date: %w", err)
	}
	return s, nil
}

// UpdateScore writes the computed efficiency score onto the session.
func (r *Repository) UpdateScore(ctx context.Context, id uuid.UUID, score float64) error {
	const query = `UPDATE sessions SET efficiency_score = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, score)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListRecent returns the most recent sessions by date descending.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions ORDER BY session_date DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	list := make([]models.Session, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Delete removes a session and, via cascade, all dependent events, readings,
// health imports, and audio clips.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Get returns a session together with all child records, each ordered by
// timestamp ascending.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.SessionDetail, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.SessionDetail{
		Session:       *s,
		Events:        []models.DisturbanceEvent{},
		Readings:      []models.EnvironmentalReading{},
		HealthImports: []models.HealthImport{},
		AudioClips:    []models.AudioClip{},
	}

	rows, err := r.pool.Query(ctx, `SELECT id, session_id, category, recorded_at, duration_sec, confidence, metadata, created_at
		FROM disturbance_events WHERE session_id = $1 ORDER BY recorded_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e models.DisturbanceEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Category, &e.RecordedAt, &e.DurationSec, &e.Confidence, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		detail.Events = append(detail.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, session_id, recorded_at, co2, temperature, humidity, created_at
		FROM environmental_readings WHERE session_id = $1 ORDER BY recorded_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rd models.EnvironmentalReading
		if err := rows.Scan(&rd.ID, &rd.SessionID, &rd.RecordedAt, &rd.CO2, &rd.Temperature, &rd.Humidity, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		detail.Readings = append(detail.Readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, session_id, source, stages, avg_heart_rate, spo2, imported_at
		FROM health_imports WHERE session_id = $1 ORDER BY imported_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list health imports: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h models.HealthImport
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Source, &h.Stages, &h.AvgHeartRate, &h.SpO2, &h.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan health import: %w", err)
		}
		detail.HealthImports = append(detail.HealthImports, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, session_id, pi_id, object_key, audio_level, recorded_at, uploaded, created_at
		FROM audio_clips WHERE session_id = $1 ORDER BY recorded_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list audio clips: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.AudioClip
		if err := rows.Scan(&c.ID, &c.SessionID, &c.PiID, &c.ObjectKey, &c.AudioLevel, &c.RecordedAt, &c.Uploaded, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audio clip: %w", err)
		}
		detail.AudioClips = append(detail.AudioClips, c)
	}
	return detail, rows.Err()
}
