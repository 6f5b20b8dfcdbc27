package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/types"
)

type ChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chunk, error)
	GetByUnitID(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) ([]*types.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Chunk, error)
	UpdateNodeID(ctx context.Context, tx *gorm.DB, id uuid.UUID, nodeID *uuid.UUID) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	repoLog := baseLog.With("repo", "ChunkRepo")
	return &chunkRepo{db: db, log: repoLog}
}

func (r *chunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.Chunk{}, nil
	}

	// Keep batches small because Text is large
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chunk types.Chunk
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&chunk).Error; err != nil {
		return nil, err
	}
	return &chunk, nil
}

func (r *chunkRepo) GetByUnitID(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chunks []*types.Chunk
	if err := transaction.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("ordinal ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var chunks []*types.Chunk
	if len(ids) == 0 {
		return chunks, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) UpdateNodeID(ctx context.Context, tx *gorm.DB, id uuid.UUID, nodeID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Chunk{}).
		Where("id = ?", id).
		Update("node_id", nodeID).Error
}

func (r *chunkRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.Chunk{}).Error
}
