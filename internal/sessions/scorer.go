package sessions

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/homemic/sleep-server/internal/models"
)

// SessionStore is the slice of the session repository the scorer needs.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	UpdateScore(ctx context.Context, id uuid.UUID, score float64) error
}

// DisturbanceSource supplies aggregated disturbance time for a session.
type DisturbanceSource interface {
	DisturbanceTotal(ctx context.Context, sessionID uuid.UUID) (*models.DisturbanceTotal, error)
}

// Scorer computes and persists a session's efficiency score.
type Scorer struct {
	sessions     SessionStore
	disturbances DisturbanceSource
}

// NewScorer creates a scorer over the session store and ingest aggregates.
func NewScorer(sessions SessionStore, disturbances DisturbanceSource) *Scorer {
	return &Scorer{sessions: sessions, disturbances: disturbances}
}

// Score is the efficiency formula: clamp(0, 100, (d-m)/d * 100) rounded to
// two decimal places. A missing or non-positive duration yields exactly 100:
// absent measurement is treated as a perfect score, not unknown.
func Score(durationMin, disturbanceMin float64) float64 {
	if durationMin <= 0 {
		return 100
	}
	s := (durationMin - disturbanceMin) / durationMin * 100
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return math.Round(s*100) / 100
}

// Compute derives the session's score from its duration and the summed
// scoring-relevant disturbance minutes, writes it back, and returns the
// updated session. Recomputation with unchanged inputs stores the identical
// value.
func (sc *Scorer) Compute(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := sc.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := sc.disturbances.DisturbanceTotal(ctx, id)
	if err != nil {
		return nil, err
	}

	duration := 0.0
	if s.DurationMin != nil {
		duration = float64(*s.DurationMin)
	}
	score := Score(duration, total.Minutes)
	if err := sc.sessions.UpdateScore(ctx, id, score); err != nil {
		return nil, err
	}
	s.EfficiencyScore = &score
	return s, nil
}
