package models

import (
	"time"

	"github.com/google/uuid"
)

// HealthImport is an offline health-tracker export merged into a session.
// Unique per (session, source). The sleep-stage breakdown is a snapshot and
// is replaced wholesale on re-import; heart rate and SpO₂ keep the first
// non-null value ever written.
type HealthImport struct {
	ID           uuid.UUID      `json:"id"`
	SessionID    uuid.UUID      `json:"session_id"`
	Source       string         `json:"source"`
	Stages       map[string]int `json:"stages,omitempty"`
	AvgHeartRate *float64       `json:"avg_heart_rate,omitempty"`
	SpO2         *float64       `json:"spo2,omitempty"`
	ImportedAt   time.Time      `json:"imported_at"`
}
