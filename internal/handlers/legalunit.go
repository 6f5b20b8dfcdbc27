package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/services"
)

type LegalUnitHandler struct {
	log           *logger.Logger
	units         services.UnitService
	changeService services.ChangeService
}

func NewLegalUnitHandler(log *logger.Logger, units services.UnitService, changes services.ChangeService) *LegalUnitHandler {
	return &LegalUnitHandler{
		log:           log.With("handler", "LegalUnitHandler"),
		units:         units,
		changeService: changes,
	}
}

type createUnitRequest struct {
	DocumentID uuid.UUID  `json:"document_id" binding:"required"`
	ParentID   *uuid.UUID `json:"parent_id"`
	UnitType   string     `json:"unit_type"`
	Number     string     `json:"number"`
	PathLabel  string     `json:"path_label"`
	SortKey    int        `json:"sort_key"`
	Content    string     `json:"content"`
	Tags       []string   `json:"tags"`
	ValidFrom  string     `json:"valid_from"`
	ValidTo    string     `json:"valid_to"`
}

type updateUnitRequest struct {
	UnitType  *string   `json:"unit_type"`
	Number    *string   `json:"number"`
	PathLabel *string   `json:"path_label"`
	SortKey   *int      `json:"sort_key"`
	Content   *string   `json:"content"`
	Tags      *[]string `json:"tags"`
}

type applyChangeRequest struct {
	Kind           string     `json:"kind" binding:"required"`
	EffectiveDate  string     `json:"effective_date" binding:"required"`
	SupersededByID *uuid.UUID `json:"superseded_by_id"`
	SourceRef      string     `json:"source_ref"`
	Note           string     `json:"note"`
}

// POST /api/units
func (h *LegalUnitHandler) Create(c *gin.Context) {
	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	validFrom, err := parseOptionalDate(req.ValidFrom)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}
	validTo, err := parseOptionalDate(req.ValidTo)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", err)
		return
	}
	unit, err := h.units.Create(c.Request.Context(), services.CreateUnitInput{
		DocumentID: req.DocumentID,
		ParentID:   req.ParentID,
		UnitType:   req.UnitType,
		Number:     req.Number,
		PathLabel:  req.PathLabel,
		SortKey:    req.SortKey,
		Content:    req.Content,
		Tags:       req.Tags,
		ValidFrom:  validFrom,
		ValidTo:    validTo,
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}
	RespondCreated(c, unit)
}

// GET /api/units/:id
func (h *LegalUnitHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	unit, err := h.units.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, unit)
}

// PUT /api/units/:id
func (h *LegalUnitHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req updateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	unit, err := h.units.Update(c.Request.Context(), id, services.UpdateUnitInput{
		UnitType:  req.UnitType,
		Number:    req.Number,
		PathLabel: req.PathLabel,
		SortKey:   req.SortKey,
		Content:   req.Content,
		Tags:      req.Tags,
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "update_failed", err)
		return
	}
	RespondOK(c, unit)
}

// DELETE /api/units/:id
func (h *LegalUnitHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	if err := h.units.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/units/:id/reprocess
func (h *LegalUnitHandler) Reprocess(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	out, err := h.units.Reprocess(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "reprocess_failed", err)
		return
	}
	RespondOK(c, out)
}

// POST /api/units/:id/changes
func (h *LegalUnitHandler) ApplyChange(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	var req applyChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	effective, err := time.Parse("2006-01-02", req.EffectiveDate)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_date", fmt.Errorf("effective_date must be YYYY-MM-DD: %w", err))
		return
	}
	change, err := h.changeService.ApplyChange(c.Request.Context(), services.ApplyChangeInput{
		UnitID:         id,
		Kind:           req.Kind,
		EffectiveDate:  effective,
		SupersededByID: req.SupersededByID,
		SourceRef:      req.SourceRef,
		Note:           req.Note,
	})
	if err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "change_rejected", err)
		return
	}
	RespondCreated(c, change)
}

// GET /api/units/:id/changes
func (h *LegalUnitHandler) Timeline(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	timeline, err := h.changeService.Timeline(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, timeline)
}

// GET /api/units/:id/consistency
func (h *LegalUnitHandler) CheckConsistency(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	issues, err := h.changeService.CheckConsistency(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	RespondOK(c, gin.H{"unit_id": id, "issues": issues, "consistent": len(issues) == 0})
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return &t, nil
}
