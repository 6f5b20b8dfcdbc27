package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type LegalDocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.LegalDocument) (*types.LegalDocument, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LegalDocument, error)
	List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.LegalDocument, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type legalDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLegalDocumentRepo(db *gorm.DB, baseLog *logger.Logger) LegalDocumentRepo {
	repoLog := baseLog.With("repo", "LegalDocumentRepo")
	return &legalDocumentRepo{db: db, log: repoLog}
}

func (r *legalDocumentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.LegalDocument) (*types.LegalDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *legalDocumentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LegalDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var doc types.LegalDocument
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *legalDocumentRepo) List(ctx context.Context, tx *gorm.DB, limit, offset int) ([]*types.LegalDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var docs []*types.LegalDocument
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *legalDocumentRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.LegalDocument{}).Error
}
