package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type SyncStatsRepo interface {
	Create(ctx context.Context, tx *gorm.DB, stats *types.SyncStats) (*types.SyncStats, error)
	GetLatest(ctx context.Context, tx *gorm.DB) (*types.SyncStats, error)
}

type syncStatsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSyncStatsRepo(db *gorm.DB, baseLog *logger.Logger) SyncStatsRepo {
	repoLog := baseLog.With("repo", "SyncStatsRepo")
	return &syncStatsRepo{db: db, log: repoLog}
}

func (r *syncStatsRepo) Create(ctx context.Context, tx *gorm.DB, stats *types.SyncStats) (*types.SyncStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(stats).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *syncStatsRepo) GetLatest(ctx context.Context, tx *gorm.DB) (*types.SyncStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var stats types.SyncStats
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		First(&stats).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
