package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Disturbance event categories. Talk is recorded for context but excluded
// from efficiency scoring.
const (
	CategorySnore    = "snore"
	CategoryMovement = "movement"
	CategoryCough    = "cough"
	CategoryTalk     = "talk"
)

// Categories is the fixed vocabulary accepted by ingestion.
var Categories = map[string]bool{
	CategorySnore:    true,
	CategoryMovement: true,
	CategoryCough:    true,
	CategoryTalk:     true,
}

// ScoringCategories are the categories counted against the efficiency score.
var ScoringCategories = []string{CategorySnore, CategoryMovement, CategoryCough}

// DisturbanceEvent is a classified audio interruption detected during a
// session. Immutable once created; ingestion only appends.
type DisturbanceEvent struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Category    string          `json:"category"`
	RecordedAt  time.Time       `json:"recorded_at"`
	DurationSec float64         `json:"duration_sec"`
	Confidence  float64         `json:"confidence"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DisturbanceTotal aggregates scoring-relevant events for a session.
type DisturbanceTotal struct {
	Count   int     `json:"count"`
	Minutes float64 `json:"minutes"`
}
