package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homemic/sleep-server/internal/models"
)

func TestScoreFormula(t *testing.T) {
	// 480 minutes with 48 disturbance minutes -> 90.00
	assert.Equal(t, 90.00, Score(480, 48))

	assert.Equal(t, 100.0, Score(480, 0))
	assert.Equal(t, 0.0, Score(60, 60))
	assert.Equal(t, 0.0, Score(60, 90), "disturbance beyond duration clamps to zero")
	assert.Equal(t, 100.0, Score(60, -5), "negative disturbance clamps to 100")

	// Rounded to two decimal places.
	assert.Equal(t, 93.33, Score(450, 30))
}

func TestScoreMissingDurationIsPerfect(t *testing.T) {
	// Zero or negative duration scores exactly 100: missing measurement is
	// treated as perfect, not unknown.
	assert.Equal(t, 100.0, Score(0, 0))
	assert.Equal(t, 100.0, Score(0, 999))
	assert.Equal(t, 100.0, Score(-10, 5))
}

func TestScoreMonotoneInDisturbance(t *testing.T) {
	prev := Score(480, 0)
	for m := 1.0; m <= 500; m += 7 {
		s := Score(480, m)
		assert.LessOrEqual(t, s, prev, "score must not increase as disturbance grows")
		prev = s
	}
}

type fakeSessionStore struct {
	session *models.Session
	updates []float64
}

func (f *fakeSessionStore) GetSession(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, models.ErrNotFound
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeSessionStore) UpdateScore(_ context.Context, id uuid.UUID, score float64) error {
	if f.session == nil || f.session.ID != id {
		return models.ErrNotFound
	}
	f.updates = append(f.updates, score)
	f.session.EfficiencyScore = &score
	return nil
}

type fakeDisturbances struct {
	total models.DisturbanceTotal
}

func (f *fakeDisturbances) DisturbanceTotal(context.Context, uuid.UUID) (*models.DisturbanceTotal, error) {
	cp := f.total
	return &cp, nil
}

func closedSession(durationMin int) *models.Session {
	now := time.Now()
	bed := now.Add(-time.Duration(durationMin) * time.Minute)
	return &models.Session{
		ID:          uuid.New(),
		Date:        models.DateOf(now),
		BedTime:     &bed,
		WakeTime:    &now,
		DurationMin: &durationMin,
	}
}

func TestComputeWritesScoreBack(t *testing.T) {
	store := &fakeSessionStore{session: closedSession(480)}
	scorer := NewScorer(store, &fakeDisturbances{total: models.DisturbanceTotal{Count: 3, Minutes: 48}})

	s, err := scorer.Compute(context.Background(), store.session.ID)
	require.NoError(t, err)
	require.NotNil(t, s.EfficiencyScore)
	assert.Equal(t, 90.00, *s.EfficiencyScore)
	assert.Equal(t, []float64{90.00}, store.updates)
}

func TestComputeIsIdempotent(t *testing.T) {
	store := &fakeSessionStore{session: closedSession(420)}
	scorer := NewScorer(store, &fakeDisturbances{total: models.DisturbanceTotal{Count: 1, Minutes: 21}})

	first, err := scorer.Compute(context.Background(), store.session.ID)
	require.NoError(t, err)
	second, err := scorer.Compute(context.Background(), store.session.ID)
	require.NoError(t, err)

	assert.Equal(t, *first.EfficiencyScore, *second.EfficiencyScore)
	assert.Equal(t, store.updates[0], store.updates[1])
}

func TestComputeUnsetDurationScoresPerfect(t *testing.T) {
	// A session closed without a bed time has no duration; the policy says
	// that scores 100 rather than erroring.
	now := time.Now()
	store := &fakeSessionStore{session: &models.Session{
		ID:       uuid.New(),
		Date:     models.DateOf(now),
		WakeTime: &now,
	}}
	scorer := NewScorer(store, &fakeDisturbances{total: models.DisturbanceTotal{Count: 5, Minutes: 120}})

	s, err := scorer.Compute(context.Background(), store.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, *s.EfficiencyScore)
}

func TestComputeUnknownSession(t *testing.T) {
	store := &fakeSessionStore{}
	scorer := NewScorer(store, &fakeDisturbances{})

	_, err := scorer.Compute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
