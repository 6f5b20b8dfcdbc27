package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type LegalUnitRepo interface {
	Create(ctx context.Context, tx *gorm.DB, unit *types.LegalUnit) (*types.LegalUnit, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LegalUnit, error)
	GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.LegalUnit, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	UpdateValidity(ctx context.Context, tx *gorm.DB, id uuid.UUID, validFrom, validTo *time.Time) error
	ActiveAsOf(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, on time.Time) ([]*types.LegalUnit, error)
	ListAllIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type legalUnitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLegalUnitRepo(db *gorm.DB, baseLog *logger.Logger) LegalUnitRepo {
	repoLog := baseLog.With("repo", "LegalUnitRepo")
	return &legalUnitRepo{db: db, log: repoLog}
}

func (r *legalUnitRepo) Create(ctx context.Context, tx *gorm.DB, unit *types.LegalUnit) (*types.LegalUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(unit).Error; err != nil {
		return nil, err
	}
	return unit, nil
}

func (r *legalUnitRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.LegalUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var unit types.LegalUnit
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *legalUnitRepo) GetByDocumentID(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) ([]*types.LegalUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var units []*types.LegalUnit
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("sort_key ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *legalUnitRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(fields) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.LegalUnit{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpdateValidity writes both interval bounds, including explicit NULLs.
func (r *legalUnitRepo) UpdateValidity(ctx context.Context, tx *gorm.DB, id uuid.UUID, validFrom, validTo *time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.LegalUnit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"valid_from": validFrom,
			"valid_to":   validTo,
		}).Error
}

// ActiveAsOf filters on the raw interval columns so both halves stay
// sargable: NULL bounds mean open-ended on that side.
func (r *legalUnitRepo) ActiveAsOf(ctx context.Context, tx *gorm.DB, documentID uuid.UUID, on time.Time) ([]*types.LegalUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var units []*types.LegalUnit
	if err := transaction.WithContext(ctx).
		Where("document_id = ?", documentID).
		Where("(valid_from IS NULL OR valid_from <= ?)", on).
		Where("(valid_to IS NULL OR valid_to >= ?)", on).
		Order("sort_key ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *legalUnitRepo) ListAllIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.LegalUnit{}).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *legalUnitRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.LegalUnit{}).Error
}
