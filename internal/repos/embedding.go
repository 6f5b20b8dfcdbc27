package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type EmbeddingRepo interface {
	UpsertForChunk(ctx context.Context, tx *gorm.DB, emb *types.Embedding) (*types.Embedding, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Embedding, error)
	GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*types.Embedding, error)
	GetUnsynced(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Embedding, error)
	GetMetadataDirty(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Embedding, error)
	MarkSynced(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkSyncFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error
	SetMetadata(ctx context.Context, tx *gorm.DB, id uuid.UUID, hash, state string) error
	InvalidateMetadataByUnitIDs(ctx context.Context, tx *gorm.DB, unitIDs []uuid.UUID) (int64, error)
	MarkAllUnsynced(ctx context.Context, tx *gorm.DB) (int64, error)
	DeleteByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) error
	CountTotal(ctx context.Context, tx *gorm.DB) (int64, error)
	CountSynced(ctx context.Context, tx *gorm.DB) (int64, error)
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	repoLog := baseLog.With("repo", "EmbeddingRepo")
	return &embeddingRepo{db: db, log: repoLog}
}

// UpsertForChunk inserts or refreshes the embedding for a (chunk, model)
// pair. A refresh resets the sync flags so the push job picks it up again.
func (r *embeddingRepo) UpsertForChunk(ctx context.Context, tx *gorm.DB, emb *types.Embedding) (*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chunk_id"}, {Name: "model_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"vector", "dim", "metadata_hash", "metadata_state",
				"synced_to_core", "synced_at", "sync_error", "sync_retry_count",
				"updated_at",
			}),
		}).
		Create(emb).Error; err != nil {
		return nil, err
	}
	return emb, nil
}

func (r *embeddingRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var emb types.Embedding
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&emb).Error; err != nil {
		return nil, err
	}
	return &emb, nil
}

func (r *embeddingRepo) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var embs []*types.Embedding
	if len(chunkIDs) == 0 {
		return embs, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Find(&embs).Error; err != nil {
		return nil, err
	}
	return embs, nil
}

func (r *embeddingRepo) GetUnsynced(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var embs []*types.Embedding
	if err := transaction.WithContext(ctx).
		Where("synced_to_core = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&embs).Error; err != nil {
		return nil, err
	}
	return embs, nil
}

// GetMetadataDirty returns synced embeddings whose unit-level metadata was
// invalidated and may need a re-push.
func (r *embeddingRepo) GetMetadataDirty(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var embs []*types.Embedding
	if err := transaction.WithContext(ctx).
		Where("metadata_state = ?", types.MetadataDirty).
		Where("synced_to_core = ?", true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&embs).Error; err != nil {
		return nil, err
	}
	return embs, nil
}

func (r *embeddingRepo) MarkSynced(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Embedding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"synced_to_core": true,
			"synced_at":      at,
			"sync_error":     "",
		}).Error
}

func (r *embeddingRepo) MarkSyncFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errMsg string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Embedding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_error":       errMsg,
			"sync_retry_count": gorm.Expr("sync_retry_count + 1"),
		}).Error
}

func (r *embeddingRepo) SetMetadata(ctx context.Context, tx *gorm.DB, id uuid.UUID, hash, state string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Embedding{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"metadata_hash":  hash,
			"metadata_state": state,
		}).Error
}

// InvalidateMetadataByUnitIDs flags every embedding under the given units as
// metadata-dirty. The actual "did anything change" decision is made later by
// hash comparison; this just schedules the check.
func (r *embeddingRepo) InvalidateMetadataByUnitIDs(ctx context.Context, tx *gorm.DB, unitIDs []uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(unitIDs) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Model(&types.Embedding{}).
		Where("chunk_id IN (?)", transaction.
			Model(&types.Chunk{}).
			Select("id").
			Where("unit_id IN ?", unitIDs)).
		Update("metadata_state", types.MetadataDirty)
	return res.RowsAffected, res.Error
}

func (r *embeddingRepo) MarkAllUnsynced(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.Embedding{}).
		Where("synced_to_core = ?", true).
		Updates(map[string]interface{}{
			"synced_to_core": false,
			"synced_at":      nil,
		})
	return res.RowsAffected, res.Error
}

func (r *embeddingRepo) DeleteByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Delete(&types.Embedding{}).Error
}

func (r *embeddingRepo) CountTotal(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).Model(&types.Embedding{}).Count(&n).Error
	return n, err
}

func (r *embeddingRepo) CountSynced(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(ctx).
		Model(&types.Embedding{}).
		Where("synced_to_core = ?", true).
		Count(&n).Error
	return n, err
}
