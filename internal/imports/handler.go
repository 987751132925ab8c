package imports

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/pkg/response"
)

// Handler handles health-tracker import HTTP requests.
type Handler struct {
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewHandler creates an imports handler.
func NewHandler(reconciler *Reconciler, logger *zap.Logger) *Handler {
	return &Handler{reconciler: reconciler, logger: logger}
}

// Import handles POST /api/imports/:source. The body is either a single
// entry object or an array of entries (one per night); both shapes are
// accepted and processed entry by entry.
func (h *Handler) Import(c *gin.Context) {
	source := c.Param("source")
	if source == "" {
		response.BadRequest(c, "import source required")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}

	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		var single Entry
		if err := json.Unmarshal(body, &single); err != nil {
			response.BadRequest(c, "body must be an import entry or an array of entries")
			return
		}
		entries = []Entry{single}
	}
	if len(entries) == 0 {
		response.BadRequest(c, "no entries supplied")
		return
	}

	results := h.reconciler.ImportRecords(c.Request.Context(), source, entries)

	imported := 0
	for _, r := range results {
		if r.Outcome == OutcomeImported {
			imported++
		}
	}
	h.logger.Info("health import processed",
		zap.String("source", source),
		zap.Int("entries", len(results)),
		zap.Int("imported", imported),
	)
	response.OK(c, gin.H{"results": results, "imported": imported})
}
