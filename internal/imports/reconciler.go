package imports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/internal/sessions"
)

const dateLayout = "2006-01-02"

// Entry is one night of a health-tracker export.
type Entry struct {
	Date         string         `json:"date"` // YYYY-MM-DD
	BedTime      *time.Time     `json:"bed_time,omitempty"`
	WakeTime     *time.Time     `json:"wake_time,omitempty"`
	DurationMin  *int           `json:"duration_min,omitempty"`
	Stages       map[string]int `json:"stages,omitempty"`
	AvgHeartRate *float64       `json:"avg_heart_rate,omitempty"`
	SpO2         *float64       `json:"spo2,omitempty"`
}

// Entry outcomes.
const (
	OutcomeImported = "imported"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

// EntryResult reports the per-entry outcome of a batch import.
type EntryResult struct {
	Date      string     `json:"date,omitempty"`
	Outcome   string     `json:"outcome"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// SessionFiller resolves-or-creates a session with fill-gaps-only semantics.
type SessionFiller interface {
	FillForDate(ctx context.Context, date time.Time, bedTime, wakeTime *time.Time, durationMin *int) (*models.Session, error)
}

// ImportStore upserts the per-(session, source) health import record.
type ImportStore interface {
	Upsert(ctx context.Context, sessionID uuid.UUID, source string, stages map[string]int, avgHeartRate, spo2 *float64) (*models.HealthImport, error)
}

// Reconciler merges health-tracker exports into sessions. It is the inverse
// policy of StartSession: imports fill gaps and never reset live-captured
// fields.
type Reconciler struct {
	sessions SessionFiller
	imports  ImportStore
	locks    *sessions.Locks
	logger   *zap.Logger
}

// NewReconciler creates an import reconciler.
func NewReconciler(sf SessionFiller, is ImportStore, locks *sessions.Locks, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{sessions: sf, imports: is, locks: locks, logger: logger}
}

// ImportRecords processes each entry independently: a malformed entry is
// skipped (or errored) and reported, never aborting the rest of the batch.
func (r *Reconciler) ImportRecords(ctx context.Context, source string, entries []Entry) []EntryResult {
	results := make([]EntryResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, r.importOne(ctx, source, e))
	}
	return results
}

// parseDate validates the entry date. Failures wrap ErrConflictIgnored so the
// caller reports the entry as skipped rather than errored.
func (e Entry) parseDate() (time.Time, error) {
	if e.Date == "" {
		return time.Time{}, fmt.Errorf("missing date: %w", models.ErrConflictIgnored)
	}
	date, err := time.Parse(dateLayout, e.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable date, expected YYYY-MM-DD: %w", models.ErrConflictIgnored)
	}
	return date, nil
}

func (r *Reconciler) importOne(ctx context.Context, source string, e Entry) EntryResult {
	date, err := e.parseDate()
	if errors.Is(err, models.ErrConflictIgnored) {
		return EntryResult{Date: e.Date, Outcome: OutcomeSkipped, Reason: err.Error()}
	}

	unlock := r.locks.Lock("date:" + date.Format(dateLayout))
	defer unlock()

	s, err := r.sessions.FillForDate(ctx, date, e.BedTime, e.WakeTime, e.DurationMin)
	if err != nil {
		r.logger.Error("import fill session", zap.String("date", e.Date), zap.Error(err))
		return EntryResult{Date: e.Date, Outcome: OutcomeError, Reason: err.Error()}
	}
	if _, err := r.imports.Upsert(ctx, s.ID, source, e.Stages, e.AvgHeartRate, e.SpO2); err != nil {
		r.logger.Error("import upsert record", zap.String("date", e.Date), zap.Error(err))
		return EntryResult{Date: e.Date, Outcome: OutcomeError, Reason: err.Error()}
	}
	return EntryResult{Date: e.Date, Outcome: OutcomeImported, SessionID: &s.ID}
}
