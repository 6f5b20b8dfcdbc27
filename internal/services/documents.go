package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/types"
)

// DocumentInput carries the writable fields of a legal document.
type DocumentInput struct {
	Title        string `json:"title" binding:"required"`
	DocType      string `json:"doc_type"`
	Jurisdiction string `json:"jurisdiction"`
	Authority    string `json:"authority"`
	Language     string `json:"language"`
	URNLex       string `json:"urn_lex"`
}

type DocumentService interface {
	Create(ctx context.Context, input DocumentInput) (*types.LegalDocument, error)
	Get(ctx context.Context, id uuid.UUID) (*types.LegalDocument, error)
	List(ctx context.Context, limit, offset int) ([]*types.LegalDocument, error)
	Update(ctx context.Context, id uuid.UUID, input DocumentInput) (*types.LegalDocument, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentService struct {
	db       *gorm.DB
	docRepo  repos.LegalDocumentRepo
	unitRepo repos.LegalUnitRepo
	engine   SyncEngine
	log      *logger.Logger
}

func NewDocumentService(db *gorm.DB, docRepo repos.LegalDocumentRepo, unitRepo repos.LegalUnitRepo, engine SyncEngine, baseLog *logger.Logger) DocumentService {
	return &documentService{
		db:       db,
		docRepo:  docRepo,
		unitRepo: unitRepo,
		engine:   engine,
		log:      baseLog.With("service", "DocumentService"),
	}
}

func (s *documentService) Create(ctx context.Context, input DocumentInput) (*types.LegalDocument, error) {
	doc := &types.LegalDocument{
		Title:        input.Title,
		Jurisdiction: input.Jurisdiction,
		Authority:    input.Authority,
		URNLex:       input.URNLex,
	}
	if input.DocType != "" {
		doc.DocType = input.DocType
	}
	if input.Language != "" {
		doc.Language = input.Language
	}
	return s.docRepo.Create(ctx, nil, doc)
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*types.LegalDocument, error) {
	return s.docRepo.GetByID(ctx, nil, id)
}

func (s *documentService) List(ctx context.Context, limit, offset int) ([]*types.LegalDocument, error) {
	return s.docRepo.List(ctx, nil, limit, offset)
}

// Update edits document fields and flags every embedding under the document
// for a metadata re-check, since document fields flow into chunk metadata.
func (s *documentService) Update(ctx context.Context, id uuid.UUID, input DocumentInput) (*types.LegalDocument, error) {
	doc, err := s.docRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc.Title = input.Title
		doc.Jurisdiction = input.Jurisdiction
		doc.Authority = input.Authority
		doc.URNLex = input.URNLex
		if input.DocType != "" {
			doc.DocType = input.DocType
		}
		if input.Language != "" {
			doc.Language = input.Language
		}
		return tx.Save(doc).Error
	})
	if err != nil {
		return nil, err
	}

	units, err := s.unitRepo.GetByDocumentID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	unitIDs := make([]uuid.UUID, len(units))
	for i, u := range units {
		unitIDs[i] = u.ID
	}
	if _, err := s.engine.InvalidateUnitMetadata(ctx, unitIDs); err != nil {
		return nil, fmt.Errorf("invalidate metadata: %w", err)
	}
	return doc, nil
}

// Delete tears down every unit under the document through the deletion
// contract, then removes the document row.
func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	units, err := s.unitRepo.GetByDocumentID(ctx, nil, id)
	if err != nil {
		return err
	}
	for _, u := range units {
		if err := s.engine.DeleteUnit(ctx, u.ID); err != nil {
			return fmt.Errorf("delete unit %s: %w", u.ID, err)
		}
	}
	return s.docRepo.Delete(ctx, nil, id)
}
