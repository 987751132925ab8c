package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homemic/sleep-server/internal/models"
)

func TestValidateEventCategory(t *testing.T) {
	assert.Nil(t, validateEvent(models.CategorySnore, 30, 0.9))
	assert.Nil(t, validateEvent(models.CategoryMovement, 0, 0))
	assert.Nil(t, validateEvent(models.CategoryCough, 5, 1))
	// Talk is a valid category even though it never affects the score.
	assert.Nil(t, validateEvent(models.CategoryTalk, 600, 0.5))

	verr := validateEvent("sneeze", 10, 0.5)
	require.NotNil(t, verr)
	assert.Equal(t, "category", verr.Field)
}

func TestValidateEventConfidenceRange(t *testing.T) {
	// Out-of-range confidence is rejected, not clamped.
	for _, bad := range []float64{-0.01, 1.01, 2, -5} {
		verr := validateEvent(models.CategorySnore, 10, bad)
		require.NotNil(t, verr, "confidence %g must be rejected", bad)
		assert.Equal(t, "confidence", verr.Field)
	}
	assert.Nil(t, validateEvent(models.CategorySnore, 10, 0))
	assert.Nil(t, validateEvent(models.CategorySnore, 10, 1))
}

func TestValidateEventDuration(t *testing.T) {
	verr := validateEvent(models.CategorySnore, -1, 0.5)
	require.NotNil(t, verr)
	assert.Equal(t, "duration_sec", verr.Field)
}

func TestValidateReadingRequiresAMeasurement(t *testing.T) {
	co2 := 850.0
	assert.Nil(t, validateReading(&co2, nil, nil), "a single measurement is enough")

	verr := validateReading(nil, nil, nil)
	require.NotNil(t, verr)
}

func TestScoringCategoriesExcludeTalk(t *testing.T) {
	assert.NotContains(t, models.ScoringCategories, models.CategoryTalk)
	assert.ElementsMatch(t, []string{models.CategorySnore, models.CategoryMovement, models.CategoryCough}, models.ScoringCategories)
}
