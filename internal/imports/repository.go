package imports

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homemic/sleep-server/internal/models"
)

// Repository persists health-tracker import records, unique per
// (session, source).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a health imports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes the import record for (session, source). The sleep-stage
// breakdown is a snapshot and is replaced wholesale; heart rate and SpO₂
// follow first-write-wins so a later import never clobbers a known value,
// only fills a null.
func (r *Repository) Upsert(ctx context.Context, sessionID uuid.UUID, source string, stages map[string]int, avgHeartRate, spo2 *float64) (*models.HealthImport, error) {
	const query = `INSERT INTO health_imports (session_id, source, stages, avg_heart_rate, spo2)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, source) DO UPDATE
		SET stages = EXCLUDED.stages,
		    avg_heart_rate = COALESCE(health_imports.avg_heart_rate, EXCLUDED.avg_heart_rate),
		    spo2 = COALESCE(health_imports.spo2, EXCLUDED.spo2),
		    imported_at = now()
		RETURNING id, session_id, source, stages, avg_heart_rate, spo2, imported_at`
	var h models.HealthImport
	err := r.pool.QueryRow(ctx, query, sessionID, source, stages, avgHeartRate, spo2).
		Scan(&h.ID, &h.SessionID, &h.Source, &h.Stages, &h.AvgHeartRate, &h.SpO2, &h.ImportedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert health import: %w", err)
	}
	return &h, nil
}
