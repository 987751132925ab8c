package ingest

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/internal/realtime"
	"github.com/homemic/sleep-server/internal/sessions"
	"github.com/homemic/sleep-server/pkg/response"
)

// EventRequest is the body for POST /api/sessions/:id/events.
type EventRequest struct {
	Category    string          `json:"category" binding:"required"`
	RecordedAt  time.Time       `json:"recorded_at" binding:"required"`
	DurationSec float64         `json:"duration_sec"`
	Confidence  float64         `json:"confidence"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// ReadingRequest is the body for POST /api/sessions/:id/readings.
type ReadingRequest struct {
	RecordedAt  time.Time `json:"recorded_at" binding:"required"`
	CO2         *float64  `json:"co2,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
}

// Handler handles event and reading ingestion plus aggregate queries.
type Handler struct {
	repo   *Repository
	hub    *realtime.Hub
	locks  *sessions.Locks
	logger *zap.Logger
}

// NewHandler creates an ingest handler.
func NewHandler(repo *Repository, hub *realtime.Hub, locks *sessions.Locks, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, hub: hub, locks: locks, logger: logger}
}

// CreateEvent handles POST /api/sessions/:id/events.
func (h *Handler) CreateEvent(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if verr := validateEvent(req.Category, req.DurationSec, req.Confidence); verr != nil {
		response.BadRequest(c, verr.Error())
		return
	}

	unlock := h.locks.Lock(sessionID.String())
	defer unlock()

	e, err := h.repo.RecordEvent(c.Request.Context(), sessionID, req.Category, req.RecordedAt, req.DurationSec, req.Confidence, req.Metadata)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("record event", zap.Error(err))
		response.Internal(c, "failed to record event")
		return
	}
	response.Created(c, e)
}

// CreateReading handles POST /api/sessions/:id/readings. Broadcasts an
// environment_update so dashboards follow the polling interval rather than a
// schedule of their own.
func (h *Handler) CreateReading(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if verr := validateReading(req.CO2, req.Temperature, req.Humidity); verr != nil {
		response.BadRequest(c, verr.Error())
		return
	}

	unlock := h.locks.Lock(sessionID.String())
	defer unlock()

	rd, err := h.repo.RecordReading(c.Request.Context(), sessionID, req.RecordedAt, req.CO2, req.Temperature, req.Humidity)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("record reading", zap.Error(err))
		response.Internal(c, "failed to record reading")
		return
	}

	h.hub.Publish(realtime.EventEnvironment, rd)
	response.Created(c, rd)
}

// Summary handles GET /api/sessions/:id/summary: disturbance totals plus
// per-measurement environmental min/avg/max.
func (h *Handler) Summary(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	exists, err := h.repo.SessionExists(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("check session", zap.Error(err))
		response.Internal(c, "failed to aggregate disturbances")
		return
	}
	if !exists {
		response.NotFound(c, "session not found")
		return
	}
	total, err := h.repo.DisturbanceTotal(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("disturbance total", zap.Error(err))
		response.Internal(c, "failed to aggregate disturbances")
		return
	}
	env, err := h.repo.EnvironmentalSummary(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("environmental summary", zap.Error(err))
		response.Internal(c, "failed to aggregate readings")
		return
	}
	response.OK(c, gin.H{"disturbances": total, "environment": env})
}
