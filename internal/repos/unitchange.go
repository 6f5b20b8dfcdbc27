package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type UnitChangeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, change *types.UnitChange) (*types.UnitChange, error)
	ListByUnit(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) ([]*types.UnitChange, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.UnitChange, error)
}

type unitChangeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUnitChangeRepo(db *gorm.DB, baseLog *logger.Logger) UnitChangeRepo {
	repoLog := baseLog.With("repo", "UnitChangeRepo")
	return &unitChangeRepo{db: db, log: repoLog}
}

func (r *unitChangeRepo) Create(ctx context.Context, tx *gorm.DB, change *types.UnitChange) (*types.UnitChange, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(change).Error; err != nil {
		return nil, err
	}
	return change, nil
}

// ListByUnit returns the unit's change history in effective-date order, with
// insertion order breaking ties so same-day events replay deterministically.
func (r *unitChangeRepo) ListByUnit(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) ([]*types.UnitChange, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var changes []*types.UnitChange
	if err := transaction.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("effective_date ASC, created_at ASC").
		Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *unitChangeRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.UnitChange, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var changes []*types.UnitChange
	if err := transaction.WithContext(ctx).
		Order("effective_date ASC, created_at ASC").
		Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
