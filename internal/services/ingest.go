package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/chunker"
	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/types"
)

// IngestOutcome summarizes one reprocessing pass over a unit.
type IngestOutcome struct {
	UnitID  uuid.UUID `json:"unit_id"`
	Total   int       `json:"total"`
	Created int       `json:"created"`
	Kept    int       `json:"kept"`
	Deleted int       `json:"deleted"`
}

// IngestService turns unit content into chunks and embeddings. Reprocessing
// is hash-diffed: unchanged chunks keep their rows, node ids, and verified
// sync state.
type IngestService interface {
	ReprocessUnit(ctx context.Context, unitID uuid.UUID) (*IngestOutcome, error)
}

type ingestService struct {
	db       *gorm.DB
	cfg      SyncConfig
	unitRepo repos.LegalUnitRepo
	chunks   repos.ChunkRepo
	embs     repos.EmbeddingRepo
	embedder Embedder
	engine   SyncEngine
	log      *logger.Logger
}

func NewIngestService(
	db *gorm.DB,
	cfg SyncConfig,
	unitRepo repos.LegalUnitRepo,
	chunkRepo repos.ChunkRepo,
	embRepo repos.EmbeddingRepo,
	embedder Embedder,
	engine SyncEngine,
	baseLog *logger.Logger,
) IngestService {
	return &ingestService{
		db:       db,
		cfg:      cfg,
		unitRepo: unitRepo,
		chunks:   chunkRepo,
		embs:     embRepo,
		embedder: embedder,
		engine:   engine,
		log:      baseLog.With("service", "IngestService"),
	}
}

func (s *ingestService) ReprocessUnit(ctx context.Context, unitID uuid.UUID) (*IngestOutcome, error) {
	unit, err := s.unitRepo.GetByID(ctx, nil, unitID)
	if err != nil {
		return nil, fmt.Errorf("load unit: %w", err)
	}
	existing, err := s.chunks.GetByUnitID(ctx, nil, unitID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	out := &IngestOutcome{UnitID: unitID}

	// Empty content means the unit has nothing indexable; tear everything
	// down through the deletion contract.
	if strings.TrimSpace(unit.Content) == "" {
		ids := chunkIDs(existing)
		if err := s.engine.DeleteChunks(ctx, ids); err != nil {
			return nil, err
		}
		out.Deleted = len(ids)
		return out, nil
	}

	candidates := chunker.Split(unit.Content, s.cfg.ChunkMaxTokens, s.cfg.ChunkOverlapTokens)
	out.Total = len(candidates)

	wantHashes := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		wantHashes[cand.ContentHash] = true
	}
	haveByHash := make(map[string]*types.Chunk, len(existing))
	var vanished []uuid.UUID
	for _, ch := range existing {
		if wantHashes[ch.ContentHash] {
			haveByHash[ch.ContentHash] = ch
		} else {
			vanished = append(vanished, ch.ID)
		}
	}

	if err := s.engine.DeleteChunks(ctx, vanished); err != nil {
		return nil, err
	}
	out.Deleted = len(vanished)

	var fresh, kept []*types.Chunk
	for _, cand := range candidates {
		if ch, ok := haveByHash[cand.ContentHash]; ok {
			kept = append(kept, ch)
			out.Kept++
			continue
		}
		fresh = append(fresh, &types.Chunk{
			UnitID:      unitID,
			Ordinal:     cand.Ordinal,
			Text:        cand.Text,
			TokenCount:  cand.TokenCount,
			OverlapPrev: cand.OverlapPrev,
			ContentHash: cand.ContentHash,
		})
	}

	// A kept chunk can be missing its embedding row, e.g. after an earlier
	// aborted pass or an embedding model switch; re-embed those too.
	reembed, err := s.chunksMissingEmbedding(ctx, kept)
	if err != nil {
		return nil, err
	}

	if len(fresh) == 0 && len(reembed) == 0 {
		return out, nil
	}

	// Embed before anything is written. An embedder failure here leaves no
	// rows behind, so the next pass retries the same chunks from scratch
	// instead of counting them as kept.
	toEmbed := append(append([]*types.Chunk{}, fresh...), reembed...)
	texts := make([]string, len(toEmbed))
	for i, ch := range toEmbed {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(toEmbed) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(toEmbed))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fresh) > 0 {
			if _, err := s.chunks.CreateBatch(ctx, tx, fresh); err != nil {
				return fmt.Errorf("create chunks: %w", err)
			}
		}
		for i, ch := range toEmbed {
			raw, err := json.Marshal(vectors[i])
			if err != nil {
				return fmt.Errorf("encode vector: %w", err)
			}
			if _, err := s.embs.UpsertForChunk(ctx, tx, &types.Embedding{
				ChunkID:       ch.ID,
				ModelID:       s.embedder.ModelID(),
				Vector:        datatypes.JSON(raw),
				Dim:           len(vectors[i]),
				MetadataState: types.MetadataUnknown,
			}); err != nil {
				return fmt.Errorf("upsert embedding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Created = len(fresh)

	s.log.Info("Reprocessed unit",
		"unit_id", unitID,
		"total", out.Total,
		"created", out.Created,
		"kept", out.Kept,
		"reembedded", len(reembed),
		"deleted", out.Deleted,
	)
	return out, nil
}

// chunksMissingEmbedding filters kept chunks down to those without an
// embedding row for the current model.
func (s *ingestService) chunksMissingEmbedding(ctx context.Context, kept []*types.Chunk) ([]*types.Chunk, error) {
	if len(kept) == 0 {
		return nil, nil
	}
	embs, err := s.embs.GetByChunkIDs(ctx, nil, chunkIDs(kept))
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	have := make(map[uuid.UUID]bool, len(embs))
	for _, emb := range embs {
		if emb.ModelID == s.embedder.ModelID() {
			have[emb.ChunkID] = true
		}
	}
	var missing []*types.Chunk
	for _, ch := range kept {
		if !have[ch.ID] {
			missing = append(missing, ch)
		}
	}
	return missing, nil
}

func chunkIDs(chunks []*types.Chunk) []uuid.UUID {
	ids := make([]uuid.UUID, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids
}
