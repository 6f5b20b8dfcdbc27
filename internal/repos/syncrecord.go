package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type SyncRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rec *types.SyncRecord) (*types.SyncRecord, error)
	GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*types.SyncRecord, error)
	GetUnverified(ctx context.Context, tx *gorm.DB, syncedBefore time.Time, limit int) ([]*types.SyncRecord, error)
	MarkVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
	MarkPendingRetry(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) (bool, error)
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) (bool, error)
	GetOrphans(ctx context.Context, tx *gorm.DB, limit int) ([]*types.SyncRecord, error)
	CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error)
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type syncRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSyncRecordRepo(db *gorm.DB, baseLog *logger.Logger) SyncRecordRepo {
	repoLog := baseLog.With("repo", "SyncRecordRepo")
	return &syncRecordRepo{db: db, log: repoLog}
}

func (r *syncRecordRepo) Create(ctx context.Context, tx *gorm.DB, rec *types.SyncRecord) (*types.SyncRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *syncRecordRepo) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*types.SyncRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var recs []*types.SyncRecord
	if len(chunkIDs) == 0 {
		return recs, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// GetUnverified returns records still awaiting confirmation, skipping pushes
// newer than syncedBefore so the remote index has time to become readable.
func (r *syncRecordRepo) GetUnverified(ctx context.Context, tx *gorm.DB, syncedBefore time.Time, limit int) ([]*types.SyncRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var recs []*types.SyncRecord
	if err := transaction.WithContext(ctx).
		Where("status IN ?", []string{types.SyncStatusSynced, types.SyncStatusPendingRetry}).
		Where("synced_at < ?", syncedBefore).
		Order("synced_at ASC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// MarkVerified flips the record to verified only if it is still in a
// verifiable status. The conditional update is the lease: a false return
// means another worker already settled this record.
func (r *syncRecordRepo) MarkVerified(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.SyncRecord{}).
		Where("id = ? AND status IN ?", id, []string{types.SyncStatusSynced, types.SyncStatusPendingRetry}).
		Updates(map[string]interface{}{
			"status":      types.SyncStatusVerified,
			"verified_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *syncRecordRepo) MarkPendingRetry(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.SyncRecord{}).
		Where("id = ? AND status IN ?", id, []string{types.SyncStatusSynced, types.SyncStatusPendingRetry}).
		Updates(map[string]interface{}{
			"status":        types.SyncStatusPendingRetry,
			"error_message": errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *syncRecordRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.SyncRecord{}).
		Where("id = ? AND status IN ?", id, []string{types.SyncStatusSynced, types.SyncStatusPendingRetry}).
		Updates(map[string]interface{}{
			"status":        types.SyncStatusFailed,
			"error_message": errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

// GetOrphans finds sync records whose chunk row no longer exists. These point
// at remote nodes that may still be alive and need a best-effort delete.
func (r *syncRecordRepo) GetOrphans(ctx context.Context, tx *gorm.DB, limit int) ([]*types.SyncRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var recs []*types.SyncRecord
	if err := transaction.WithContext(ctx).
		Where("chunk_id NOT IN (?)", transaction.
			Model(&types.Chunk{}).
			Select("id")).
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *syncRecordRepo) CountByStatus(ctx context.Context, tx *gorm.DB, status string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.SyncRecord{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}

func (r *syncRecordRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.SyncRecord{}).Error
}
