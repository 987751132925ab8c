package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the tracked record for one calendar night, keyed by date.
// Wake time, duration, and efficiency score are all unset while the session
// is open; closing the session fixes wake time and duration, and the score
// is computed only after close.
type Session struct {
	ID              uuid.UUID  `json:"id"`
	Date            time.Time  `json:"date"`
	BedTime         *time.Time `json:"bed_time,omitempty"`
	WakeTime        *time.Time `json:"wake_time,omitempty"`
	DurationMin     *int       `json:"duration_min,omitempty"`
	EfficiencyScore *float64   `json:"efficiency_score,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.WakeTime == nil
}

// SessionDetail is a session with all child records, each ordered by
// timestamp ascending.
type SessionDetail struct {
	Session
	Events        []DisturbanceEvent     `json:"events"`
	Readings      []EnvironmentalReading `json:"readings"`
	HealthImports []HealthImport         `json:"health_imports"`
	AudioClips    []AudioClip            `json:"audio_clips"`
}

// DateOf truncates t to its calendar date (UTC midnight), the session
// identity used throughout persistence.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
