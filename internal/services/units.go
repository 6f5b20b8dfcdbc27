package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/types"
)

// CreateUnitInput carries the writable fields of a new legal unit.
type CreateUnitInput struct {
	DocumentID uuid.UUID
	ParentID   *uuid.UUID
	UnitType   string
	Number     string
	PathLabel  string
	SortKey    int
	Content    string
	Tags       []string
	ValidFrom  *time.Time
	ValidTo    *time.Time
}

// UpdateUnitInput is a partial update; nil fields are left untouched.
type UpdateUnitInput struct {
	UnitType  *string
	Number    *string
	PathLabel *string
	SortKey   *int
	Content   *string
	Tags      *[]string
}

type UnitService interface {
	Create(ctx context.Context, input CreateUnitInput) (*types.LegalUnit, error)
	Get(ctx context.Context, id uuid.UUID) (*types.LegalUnit, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*types.LegalUnit, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateUnitInput) (*types.LegalUnit, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reprocess(ctx context.Context, id uuid.UUID) (*IngestOutcome, error)
}

type unitService struct {
	db       *gorm.DB
	unitRepo repos.LegalUnitRepo
	ingest   IngestService
	engine   SyncEngine
	log      *logger.Logger
}

func NewUnitService(db *gorm.DB, unitRepo repos.LegalUnitRepo, ingest IngestService, engine SyncEngine, baseLog *logger.Logger) UnitService {
	return &unitService{
		db:       db,
		unitRepo: unitRepo,
		ingest:   ingest,
		engine:   engine,
		log:      baseLog.With("service", "UnitService"),
	}
}

// Create persists the unit and immediately chunks and embeds its content.
func (s *unitService) Create(ctx context.Context, input CreateUnitInput) (*types.LegalUnit, error) {
	unit := &types.LegalUnit{
		DocumentID: input.DocumentID,
		ParentID:   input.ParentID,
		Number:     input.Number,
		PathLabel:  input.PathLabel,
		SortKey:    input.SortKey,
		Content:    input.Content,
		ValidFrom:  input.ValidFrom,
		ValidTo:    input.ValidTo,
	}
	if input.UnitType != "" {
		unit.UnitType = input.UnitType
	}
	if len(input.Tags) > 0 {
		raw, err := json.Marshal(input.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		unit.Tags = datatypes.JSON(raw)
	}
	if _, err := s.unitRepo.Create(ctx, nil, unit); err != nil {
		return nil, err
	}
	if _, err := s.ingest.ReprocessUnit(ctx, unit.ID); err != nil {
		return nil, fmt.Errorf("ingest unit content: %w", err)
	}
	return unit, nil
}

func (s *unitService) Get(ctx context.Context, id uuid.UUID) (*types.LegalUnit, error) {
	return s.unitRepo.GetByID(ctx, nil, id)
}

func (s *unitService) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*types.LegalUnit, error) {
	return s.unitRepo.GetByDocumentID(ctx, nil, documentID)
}

// Update edits unit fields and runs the follow-ups the edit demands: a
// content change triggers rechunking, a change to any field that flows into
// chunk metadata flags the unit's embeddings for a metadata re-check.
func (s *unitService) Update(ctx context.Context, id uuid.UUID, input UpdateUnitInput) (*types.LegalUnit, error) {
	unit, err := s.unitRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	metadataTouched := false
	contentTouched := false

	if input.UnitType != nil && *input.UnitType != unit.UnitType {
		fields["unit_type"] = *input.UnitType
		metadataTouched = true
	}
	if input.Number != nil && *input.Number != unit.Number {
		fields["number"] = *input.Number
		metadataTouched = true
	}
	if input.PathLabel != nil && *input.PathLabel != unit.PathLabel {
		fields["path_label"] = *input.PathLabel
		metadataTouched = true
	}
	if input.SortKey != nil && *input.SortKey != unit.SortKey {
		fields["sort_key"] = *input.SortKey
	}
	if input.Tags != nil {
		raw, err := json.Marshal(*input.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		if string(raw) != string(unit.Tags) {
			fields["tags"] = datatypes.JSON(raw)
			metadataTouched = true
		}
	}
	if input.Content != nil && *input.Content != unit.Content {
		fields["content"] = *input.Content
		contentTouched = true
	}

	if len(fields) == 0 {
		return unit, nil
	}
	if err := s.unitRepo.UpdateFields(ctx, nil, id, fields); err != nil {
		return nil, err
	}

	if contentTouched {
		if _, err := s.ingest.ReprocessUnit(ctx, id); err != nil {
			return nil, fmt.Errorf("reprocess unit content: %w", err)
		}
	}
	if metadataTouched {
		if _, err := s.engine.InvalidateUnitMetadata(ctx, []uuid.UUID{id}); err != nil {
			return nil, fmt.Errorf("invalidate metadata: %w", err)
		}
	}
	return s.unitRepo.GetByID(ctx, nil, id)
}

func (s *unitService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.engine.DeleteUnit(ctx, id)
}

func (s *unitService) Reprocess(ctx context.Context, id uuid.UUID) (*IngestOutcome, error) {
	return s.ingest.ReprocessUnit(ctx, id)
}
