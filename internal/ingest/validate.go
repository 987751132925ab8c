package ingest

import (
	"github.com/homemic/sleep-server/internal/models"
)

// validateEvent rejects out-of-range event input before persistence. An
// out-of-range confidence is an error, not something to clamp: clamping
// would silently corrupt the scoring inputs.
func validateEvent(category string, durationSec, confidence float64) *models.ValidationError {
	if !models.Categories[category] {
		return models.Validationf("category", "unknown category %q", category)
	}
	if durationSec < 0 {
		return models.Validationf("duration_sec", "must be non-negative")
	}
	if confidence < 0 || confidence > 1 {
		return models.Validationf("confidence", "must be within [0,1], got %g", confidence)
	}
	return nil
}

// validateReading requires at least one measurement; a reading where all
// three sensors failed carries no information.
func validateReading(co2, temperature, humidity *float64) *models.ValidationError {
	if co2 == nil && temperature == nil && humidity == nil {
		return models.Validationf("reading", "at least one of co2, temperature, humidity is required")
	}
	return nil
}
