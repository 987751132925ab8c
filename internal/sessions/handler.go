package sessions

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/internal/realtime"
	"github.com/homemic/sleep-server/pkg/response"
)

const dateLayout = "2006-01-02"

// StartRequest is the optional body for POST /api/sessions/start.
type StartRequest struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD; defaults to today
}

// Handler handles session lifecycle HTTP and realtime events.
type Handler struct {
	repo   *Repository
	scorer *Scorer
	hub    *realtime.Hub
	locks  *Locks
	logger *zap.Logger
}

// NewHandler creates a sessions handler.
func NewHandler(repo *Repository, scorer *Scorer, hub *realtime.Hub, locks *Locks, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, scorer: scorer, hub: hub, locks: locks, logger: logger}
}

// lockForStart serializes a start against both lock families. Lifecycle
// operations (end, score, ingest, delete) hold the session id key; a reset
// of an existing session must not interleave with them, so the date key
// alone is not enough. Lock order is date then id everywhere.
func lockForStart(locks *Locks, date time.Time, resolve func(time.Time) (*models.Session, error)) (func(), error) {
	unlockDate := locks.Lock("date:" + date.Format(dateLayout))
	s, err := resolve(date)
	if err != nil {
		unlockDate()
		return nil, err
	}
	if s == nil {
		return unlockDate, nil
	}
	unlockID := locks.Lock(s.ID.String())
	return func() {
		unlockID()
		unlockDate()
	}, nil
}

// Start handles POST /api/sessions/start. Starting an already-tracked date
// resets it to the open state rather than erroring.
func (h *Handler) Start(c *gin.Context) {
	date := models.DateOf(time.Now())
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			response.BadRequest(c, "invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	unlock, err := lockForStart(h.locks, date, func(d time.Time) (*models.Session, error) {
		return h.repo.GetByDate(c.Request.Context(), d)
	})
	if err != nil {
		h.logger.Error("resolve session for start", zap.Error(err))
		response.Internal(c, "failed to start session")
		return
	}
	defer unlock()

	s, err := h.repo.StartSession(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("start session", zap.Error(err))
		response.Internal(c, "failed to start session")
		return
	}

	h.hub.Publish(realtime.EventSessionStarted, s)
	response.OK(c, s)
}

// End handles POST /api/sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}

	unlock := h.locks.Lock(id.String())
	defer unlock()

	s, err := h.repo.CloseSession(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("close session", zap.Error(err))
		response.Internal(c, "failed to close session")
		return
	}

	h.hub.Publish(realtime.EventSessionEnded, s)
	response.OK(c, s)
}

// CalculateScore handles POST /api/sessions/:id/calculate-score. Recomputing
// with unchanged inputs is idempotent.
func (h *Handler) CalculateScore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}

	unlock := h.locks.Lock(id.String())
	defer unlock()

	s, err := h.scorer.Compute(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("compute score", zap.Error(err))
		response.Internal(c, "failed to compute score")
		return
	}

	h.hub.Publish(realtime.EventScoreUpdated, gin.H{
		"session_id": s.ID,
		"score":      s.EfficiencyScore,
	})
	response.OK(c, s)
}

// GetByID handles GET /api/sessions/:id, returning the session with all
// child events, readings, health imports, and audio clips.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	detail, err := h.repo.Get(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("get session", zap.Error(err))
		response.Internal(c, "failed to fetch session")
		return
	}
	response.OK(c, detail)
}

// GetByDate handles GET /api/sessions?date=YYYY-MM-DD. "No session yet" is a
// valid answer, returned as a null session rather than an error.
func (h *Handler) GetByDate(c *gin.Context) {
	dateStr := c.Query("date")
	if dateStr == "" {
		response.BadRequest(c, "date query parameter required")
		return
	}
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		response.BadRequest(c, "invalid date, expected YYYY-MM-DD")
		return
	}
	s, err := h.repo.GetByDate(c.Request.Context(), date)
	if err != nil {
		h.logger.Error("get session by date", zap.Error(err))
		response.Internal(c, "failed to fetch session")
		return
	}
	response.OK(c, gin.H{"session": s})
}

// ListRecent handles GET /api/sessions/recent?limit=N for the dashboard
// history view.
func (h *Handler) ListRecent(c *gin.Context) {
	limit := 14
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			response.BadRequest(c, "limit must be an integer within [1,100]")
			return
		}
		limit = n
	}
	list, err := h.repo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list sessions", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, gin.H{"sessions": list})
}

// Delete handles DELETE /api/sessions/:id. Child records cascade.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}

	unlock := h.locks.Lock(id.String())
	defer unlock()

	err = h.repo.Delete(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("delete session", zap.Error(err))
		response.Internal(c, "failed to delete session")
		return
	}
	response.NoContent(c)
}
