package audio

import (
	"errors"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/internal/realtime"
	"github.com/homemic/sleep-server/internal/sessions"
	"github.com/homemic/sleep-server/pkg/queue"
	"github.com/homemic/sleep-server/pkg/response"
	"github.com/homemic/sleep-server/pkg/storage"
)

// MaxClipSize is the maximum accepted clip upload (32MB covers a multi-minute
// WAV at 48kHz mono).
const MaxClipSize = 32 * 1024 * 1024

// Handler accepts raw audio clip uploads from node agents. An upload without
// a session id creates the session for today; the agent may start uploading
// before anyone pressed start.
type Handler struct {
	clips    *Repository
	sessions *sessions.Repository
	queue    *queue.Queue
	store    *storage.S3
	hub      *realtime.Hub
	locks    *sessions.Locks
	spoolDir string
	logger   *zap.Logger
}

// NewHandler creates an audio upload handler. queue and store may be nil when
// S3 uploads are disabled; clips then stay in spool storage.
func NewHandler(clips *Repository, sessionRepo *sessions.Repository, q *queue.Queue, store *storage.S3, hub *realtime.Hub, locks *sessions.Locks, spoolDir string, logger *zap.Logger) *Handler {
	return &Handler{
		clips:    clips,
		sessions: sessionRepo,
		queue:    q,
		store:    store,
		hub:      hub,
		locks:    locks,
		spoolDir: spoolDir,
		logger:   logger,
	}
}

// Upload handles POST /api/audio/upload: multipart form with an "audio" file
// plus piId, sessionId (optional), timestamp, and audioLevel fields.
func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio file required")
		return
	}
	if file.Size > MaxClipSize {
		response.BadRequest(c, "audio file too large")
		return
	}

	audioLevel := 0.0
	if v := c.PostForm("audioLevel"); v != "" {
		audioLevel, err = strconv.ParseFloat(v, 64)
		if err != nil || audioLevel < 0 || audioLevel > 100 {
			response.BadRequest(c, "audioLevel must be a number within [0,100]")
			return
		}
	}

	recordedAt := time.Now()
	if v := c.PostForm("timestamp"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "timestamp must be RFC3339")
			return
		}
		recordedAt = parsed
	}

	session, err := h.resolveSession(c, c.PostForm("sessionId"))
	if err != nil {
		return // response already written
	}

	unlock := h.locks.Lock(session.ID.String())
	defer unlock()

	clip, err := h.clips.Create(c.Request.Context(), session.ID, c.PostForm("piId"), audioLevel, recordedAt)
	if err != nil {
		h.logger.Error("create audio clip", zap.Error(err))
		response.Internal(c, "failed to record clip")
		return
	}

	localPath := filepath.Join(h.spoolDir, clip.ID.String()+".wav")
	if err := c.SaveUploadedFile(file, localPath); err != nil {
		h.logger.Error("spool audio clip", zap.Error(err), zap.String("clip_id", clip.ID.String()))
		// The row must not outlive the bytes it points at.
		if derr := h.clips.Delete(c.Request.Context(), clip.ID); derr != nil {
			h.logger.Error("roll back clip row", zap.Error(derr), zap.String("clip_id", clip.ID.String()))
		}
		response.Internal(c, "failed to store clip")
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueClipUpload(c.Request.Context(), queue.ClipUploadPayload{
			ClipID:    clip.ID,
			SessionID: session.ID,
			LocalPath: localPath,
		}); err != nil {
			// Clip stays spooled; the worker cannot pick it up until requeued.
			h.logger.Warn("enqueue clip upload", zap.Error(err), zap.String("clip_id", clip.ID.String()))
		}
	}

	h.hub.Publish(realtime.EventAudioLevel, gin.H{
		"session_id":  session.ID,
		"clip_id":     clip.ID,
		"audio_level": audioLevel,
		"recorded_at": recordedAt,
	})
	response.OK(c, gin.H{"clip": clip, "sessionId": session.ID})
}

// DownloadURL handles GET /api/audio/:id/url: a pre-signed S3 GET URL for a
// clip that has left spool storage.
func (h *Handler) DownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	clip, err := h.clips.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "clip not found")
		return
	}
	if err != nil {
		h.logger.Error("get audio clip", zap.Error(err))
		response.Internal(c, "failed to load clip")
		return
	}
	if h.store == nil || !clip.Uploaded || clip.ObjectKey == "" {
		response.NotFound(c, "clip not uploaded yet")
		return
	}
	url, err := h.store.GeneratePresignedDownloadURL(c.Request.Context(), clip.ObjectKey, h.store.PresignExpire())
	if err != nil {
		h.logger.Error("presign clip url", zap.Error(err), zap.String("clip_id", clip.ID.String()))
		response.Internal(c, "failed to sign url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in": int(h.store.PresignExpire().Seconds())})
}

// Delete handles DELETE /api/audio/:id: removes the clip row and, when the
// clip already reached S3, the stored object.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	clip, err := h.clips.GetByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "clip not found")
		return
	}
	if err != nil {
		h.logger.Error("get audio clip", zap.Error(err))
		response.Internal(c, "failed to load clip")
		return
	}
	if h.store != nil && clip.Uploaded && clip.ObjectKey != "" {
		if err := h.store.DeleteObject(c.Request.Context(), clip.ObjectKey); err != nil {
			// Row removal proceeds; the orphaned object is recoverable by key prefix.
			h.logger.Warn("delete clip object", zap.Error(err), zap.String("key", clip.ObjectKey))
		}
	}
	if err := h.clips.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete audio clip", zap.Error(err))
		response.Internal(c, "failed to delete clip")
		return
	}
	response.NoContent(c)
}

// resolveSession finds the target session: the supplied id if present,
// otherwise today's session, creating it on the first upload of the night.
func (h *Handler) resolveSession(c *gin.Context, sessionID string) (*models.Session, error) {
	ctx := c.Request.Context()
	if sessionID != "" {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			response.BadRequest(c, "invalid sessionId")
			return nil, err
		}
		s, err := h.sessions.GetSession(ctx, id)
		if err != nil {
			response.NotFound(c, "session not found")
			return nil, err
		}
		return s, nil
	}

	today := models.DateOf(time.Now())
	unlock := h.locks.Lock("date:" + today.Format("2006-01-02"))
	defer unlock()

	s, err := h.sessions.GetByDate(ctx, today)
	if err != nil {
		h.logger.Error("resolve session", zap.Error(err))
		response.Internal(c, "failed to resolve session")
		return nil, err
	}
	if s == nil {
		s, err = h.sessions.StartSession(ctx, today)
		if err != nil {
			h.logger.Error("start session on upload", zap.Error(err))
			response.Internal(c, "failed to start session")
			return nil, err
		}
		h.hub.Publish(realtime.EventSessionStarted, s)
	}
	return s, nil
}
