package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type DeletionLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entry *types.DeletionLog) (*types.DeletionLog, error)
	MarkRemoteDeleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkRemoteFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error
	ListByChunk(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID) ([]*types.DeletionLog, error)
}

type deletionLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeletionLogRepo(db *gorm.DB, baseLog *logger.Logger) DeletionLogRepo {
	repoLog := baseLog.With("repo", "DeletionLogRepo")
	return &deletionLogRepo{db: db, log: repoLog}
}

func (r *deletionLogRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.DeletionLog) (*types.DeletionLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *deletionLogRepo) MarkRemoteDeleted(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DeletionLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":              types.DeletionSuccess,
			"deleted_remotely_at": at,
		}).Error
}

func (r *deletionLogRepo) MarkRemoteFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.DeletionLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        types.DeletionFailed,
			"error_message": errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}

func (r *deletionLogRepo) ListByChunk(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID) ([]*types.DeletionLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var entries []*types.DeletionLog
	if err := transaction.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
