package models

import (
	"time"

	"github.com/google/uuid"
)

// EnvironmentalReading is one poll of the bedroom sensors. Each measurement
// is independently optional: the sensor bridge polls three entities and any
// subset may fail to answer.
type EnvironmentalReading struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	RecordedAt  time.Time `json:"recorded_at"`
	CO2         *float64  `json:"co2,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MeasurementSummary holds min/avg/max for one measurement. All fields are
// nil when the session has no readings with that measurement present.
type MeasurementSummary struct {
	Min *float64 `json:"min"`
	Avg *float64 `json:"avg"`
	Max *float64 `json:"max"`
}

// EnvironmentalSummary aggregates a session's readings per measurement,
// absent values excluded rather than counted as zero.
type EnvironmentalSummary struct {
	CO2         MeasurementSummary `json:"co2"`
	Temperature MeasurementSummary `json:"temperature"`
	Humidity    MeasurementSummary `json:"humidity"`
}
