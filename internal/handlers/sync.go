package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/services"
)

type SyncHandler struct {
	log    *logger.Logger
	engine services.SyncEngine
}

func NewSyncHandler(log *logger.Logger, engine services.SyncEngine) *SyncHandler {
	return &SyncHandler{
		log:    log.With("handler", "SyncHandler"),
		engine: engine,
	}
}

// GET /api/sync/status
// Takes a fresh snapshot rather than serving the last periodic one, so the
// numbers are current at the cost of a few count queries.
func (h *SyncHandler) Status(c *gin.Context) {
	snap, err := h.engine.SnapshotStats(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, snap)
}

// POST /api/sync/run
// Runs one push pass immediately instead of waiting for the worker tick.
func (h *SyncHandler) Run(c *gin.Context) {
	pushed, err := h.engine.SyncNew(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "sync_failed", err)
		return
	}
	metadata, err := h.engine.SyncChangedMetadata(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "sync_failed", err)
		return
	}
	RespondOK(c, gin.H{"new": pushed, "metadata": metadata})
}

// POST /api/sync/verify
func (h *SyncHandler) Verify(c *gin.Context) {
	out, err := h.engine.VerifyBatch(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "verify_failed", err)
		return
	}
	RespondOK(c, out)
}

// POST /api/sync/cleanup
func (h *SyncHandler) Cleanup(c *gin.Context) {
	out, err := h.engine.CleanupOrphans(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "cleanup_failed", err)
		return
	}
	RespondOK(c, out)
}

// POST /api/sync/resync
func (h *SyncHandler) Resync(c *gin.Context) {
	n, err := h.engine.ResyncAll(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "resync_failed", err)
		return
	}
	RespondOK(c, gin.H{"flagged": n})
}
