package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/services"
)

type DocumentHandler struct {
	log           *logger.Logger
	documents     services.DocumentService
	changeService services.ChangeService
}

func NewDocumentHandler(log *logger.Logger, docs services.DocumentService, changes services.ChangeService) *DocumentHandler {
	return &DocumentHandler{
		log:           log.With("handler", "DocumentHandler"),
		documents:     docs,
		changeService: changes,
	}
}

// POST /api/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	var input services.DocumentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), input)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	RespondCreated(c, doc)
}

// GET /api/documents
func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	docs, err := h.documents.List(c.Request.Context(), limit, offset)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, docs)
}

// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, doc)
}

// PUT /api/documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var input services.DocumentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), id, input)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "update_failed", err)
		return
	}
	RespondOK(c, doc)
}

// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/documents/:id/active?on=2024-06-10
// Point-in-time view: the units of the document in force on the given date.
func (h *DocumentHandler) ActiveUnits(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	on := time.Now().UTC()
	if raw := c.Query("on"); raw != "" {
		on, err = time.Parse("2006-01-02", raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("on must be YYYY-MM-DD: %w", err))
			return
		}
	}
	units, err := h.changeService.ActiveAsOf(c.Request.Context(), id, on)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "query_failed", err)
		return
	}
	RespondOK(c, gin.H{"on": on.Format("2006-01-02"), "units": units})
}
