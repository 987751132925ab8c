package audio

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

// Repository persists audio clip metadata. Clip bytes live in spool storage
// and then S3; rows carry only the opaque key.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audio clips repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a clip row for a freshly spooled upload.
func (r *Repository) Create(ctx context.Context, sessionID uuid.UUID, piID string, audioLevel float64, recordedAt time.Time) (*models.AudioClip, error) {
	clip := &models.AudioClip{
		SessionID:  sessionID,
		PiID:       piID,
		AudioLevel: audioLevel,
		RecordedAt: recordedAt,
	}
	const query = `INSERT INTO audio_clips (session_id, pi_id, audio_level, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, sessionID, piID, audioLevel, recordedAt).
		Scan(&clip.ID, &clip.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create audio clip: %w", err)
	}
	return clip, nil
}

// GetByID returns a clip by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AudioClip, error) {
	const query = `SELECT id, session_id, pi_id, object_key, audio_level, recorded_at, uploaded, created_at
		FROM audio_clips WHERE id = $1`
	var c models.AudioClip
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.SessionID, &c.PiID, &c.ObjectKey, &c.AudioLevel, &c.RecordedAt, &c.Uploaded, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audio clip: %w", err)
	}
	return &c, nil
}

// Delete removes a clip row. Object cleanup is the caller's job.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audio_clips WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete audio clip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkUploaded records the S3 object key once the worker has moved the clip
// out of spool storage.
func (r *Repository) MarkUploaded(ctx context.Context, id uuid.UUID, objectKey string) error {
	const query = `UPDATE audio_clips SET object_key = $2, uploaded = TRUE WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, objectKey)
	if err != nil {
		return fmt.Errorf("mark clip uploaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
