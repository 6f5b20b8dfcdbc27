package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/clients/coreindex"
	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/types"
)

// SyncOutcome summarizes one push pass.
type SyncOutcome struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// VerifyOutcome summarizes one verification pass.
type VerifyOutcome struct {
	Checked  int `json:"checked"`
	Verified int `json:"verified"`
	Retried  int `json:"retried"`
	Failed   int `json:"failed"`
}

// CleanupOutcome summarizes one orphan-cleanup pass.
type CleanupOutcome struct {
	Found         int `json:"found"`
	RemoteDeleted int `json:"remote_deleted"`
	RemoteFailed  int `json:"remote_failed"`
	LocalRemoved  int `json:"local_removed"`
}

// SyncEngine moves embeddings into the Core index and keeps the local ledger
// honest about what Core actually holds.
type SyncEngine interface {
	SyncNew(ctx context.Context) (*SyncOutcome, error)
	SyncChangedMetadata(ctx context.Context) (*SyncOutcome, error)
	InvalidateUnitMetadata(ctx context.Context, unitIDs []uuid.UUID) (int64, error)
	VerifyBatch(ctx context.Context) (*VerifyOutcome, error)
	CleanupOrphans(ctx context.Context) (*CleanupOutcome, error)
	DeleteChunks(ctx context.Context, chunkIDs []uuid.UUID) error
	DeleteUnit(ctx context.Context, unitID uuid.UUID) error
	SnapshotStats(ctx context.Context) (*types.SyncStats, error)
	ResyncAll(ctx context.Context) (int64, error)
}

type syncEngine struct {
	db       *gorm.DB
	cfg      SyncConfig
	docRepo  repos.LegalDocumentRepo
	unitRepo repos.LegalUnitRepo
	chunks   repos.ChunkRepo
	embs     repos.EmbeddingRepo
	records  repos.SyncRecordRepo
	delLog   repos.DeletionLogRepo
	stats    repos.SyncStatsRepo
	core     coreindex.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

func NewSyncEngine(
	db *gorm.DB,
	cfg SyncConfig,
	docRepo repos.LegalDocumentRepo,
	unitRepo repos.LegalUnitRepo,
	chunkRepo repos.ChunkRepo,
	embRepo repos.EmbeddingRepo,
	recordRepo repos.SyncRecordRepo,
	delLogRepo repos.DeletionLogRepo,
	statsRepo repos.SyncStatsRepo,
	core coreindex.Client,
	baseLog *logger.Logger,
) SyncEngine {
	perSec := cfg.VerifyRatePerSec
	if perSec <= 0 {
		perSec = 10
	}
	return &syncEngine{
		db:       db,
		cfg:      cfg,
		docRepo:  docRepo,
		unitRepo: unitRepo,
		chunks:   chunkRepo,
		embs:     embRepo,
		records:  recordRepo,
		delLog:   delLogRepo,
		stats:    statsRepo,
		core:     core,
		limiter:  rate.NewLimiter(rate.Limit(perSec), 1),
		log:      baseLog.With("service", "SyncEngine"),
	}
}

// pushItem pairs an embedding row with the payload built for it. The
// metadata hash is computed once here so a successful push can record
// exactly what was sent, even if the unit changes underneath us.
type pushItem struct {
	emb          *types.Embedding
	chunk        *types.Chunk
	payload      coreindex.EmbeddingPayload
	metadataHash string
}

// SyncNew pushes embeddings that have never reached Core. A batch failure
// marks every member failed and creates no sync records; if Core returns
// fewer node ids than we sent, the unmatched tail stays unsynced for the
// next pass.
func (e *syncEngine) SyncNew(ctx context.Context) (*SyncOutcome, error) {
	embs, err := e.embs.GetUnsynced(ctx, nil, e.cfg.SyncBatchSize)
	if err != nil {
		return nil, fmt.Errorf("load unsynced embeddings: %w", err)
	}
	out := &SyncOutcome{Attempted: len(embs)}
	if len(embs) == 0 {
		return out, nil
	}

	items := make([]*pushItem, 0, len(embs))
	for _, emb := range embs {
		item, err := e.buildItem(ctx, emb, true)
		if err != nil {
			e.log.Warn("Skipping embedding without buildable payload", "embedding_id", emb.ID, "error", err)
			out.Skipped++
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return out, nil
	}

	payloads := make([]coreindex.EmbeddingPayload, len(items))
	for i, it := range items {
		payloads[i] = it.payload
	}

	resp, err := e.core.SyncEmbeddings(ctx, payloads, coreindex.SyncTypeNew)
	if err != nil {
		msg := truncateErr(err, e.cfg.MaxSyncErrorLen)
		for _, it := range items {
			if dbErr := e.embs.MarkSyncFailed(ctx, nil, it.emb.ID, msg); dbErr != nil {
				e.log.Error("Failed to record sync failure", "embedding_id", it.emb.ID, "error", dbErr)
			}
		}
		out.Failed = len(items)
		e.log.Warn("Sync batch failed", "count", len(items), "error", err)
		return out, nil
	}

	// Core may answer with fewer ids than payloads; only the pairs we can
	// line up positionally count as synced.
	paired := len(items)
	if len(resp.NodeIDs) > 0 && len(resp.NodeIDs) < paired {
		paired = len(resp.NodeIDs)
		e.log.Warn("Core returned fewer node ids than payloads",
			"sent", len(items), "returned", len(resp.NodeIDs))
	}

	// The raw response is kept on each record for later dispute resolution.
	rawResp, _ := json.Marshal(resp)

	now := time.Now().UTC()
	for i := 0; i < paired; i++ {
		it := items[i]
		nodeID := it.emb.ID
		if i < len(resp.NodeIDs) {
			if parsed, perr := uuid.Parse(resp.NodeIDs[i]); perr == nil {
				nodeID = parsed
			}
		}
		if err := e.finishPush(ctx, it, nodeID, now, rawResp); err != nil {
			e.log.Error("Failed to record successful push", "embedding_id", it.emb.ID, "error", err)
			out.Failed++
			continue
		}
		out.Synced++
	}
	out.Skipped += len(items) - paired
	return out, nil
}

func (e *syncEngine) finishPush(ctx context.Context, it *pushItem, nodeID uuid.UUID, now time.Time, remoteResp []byte) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.embs.MarkSynced(ctx, tx, it.emb.ID, now); err != nil {
			return err
		}
		if err := e.embs.SetMetadata(ctx, tx, it.emb.ID, it.metadataHash, types.MetadataClean); err != nil {
			return err
		}
		if err := e.chunks.UpdateNodeID(ctx, tx, it.chunk.ID, &nodeID); err != nil {
			return err
		}
		_, err := e.records.Create(ctx, tx, &types.SyncRecord{
			NodeID:         nodeID,
			ChunkID:        it.chunk.ID,
			Status:         types.SyncStatusSynced,
			SyncedAt:       now,
			RemoteResponse: datatypes.JSON(remoteResp),
		})
		return err
	})
}

// SyncChangedMetadata re-pushes embeddings whose unit metadata was flagged
// dirty. The dirty flag only schedules the check: a recomputed hash equal to
// the stored one clears the flag without touching Core.
func (e *syncEngine) SyncChangedMetadata(ctx context.Context) (*SyncOutcome, error) {
	embs, err := e.embs.GetMetadataDirty(ctx, nil, e.cfg.SyncBatchSize)
	if err != nil {
		return nil, fmt.Errorf("load dirty embeddings: %w", err)
	}
	out := &SyncOutcome{Attempted: len(embs)}
	if len(embs) == 0 {
		return out, nil
	}

	var toPush []*pushItem
	for _, emb := range embs {
		item, err := e.buildItem(ctx, emb, false)
		if err != nil {
			e.log.Warn("Skipping dirty embedding without buildable payload", "embedding_id", emb.ID, "error", err)
			out.Skipped++
			continue
		}
		if item.metadataHash == emb.MetadataHash {
			if err := e.embs.SetMetadata(ctx, nil, emb.ID, item.metadataHash, types.MetadataClean); err != nil {
				return nil, err
			}
			out.Skipped++
			continue
		}
		toPush = append(toPush, item)
	}
	if len(toPush) == 0 {
		return out, nil
	}

	payloads := make([]coreindex.EmbeddingPayload, len(toPush))
	for i, it := range toPush {
		payloads[i] = it.payload
	}
	if _, err := e.core.SyncEmbeddings(ctx, payloads, coreindex.SyncTypeMetadata); err != nil {
		msg := truncateErr(err, e.cfg.MaxSyncErrorLen)
		for _, it := range toPush {
			if dbErr := e.embs.MarkSyncFailed(ctx, nil, it.emb.ID, msg); dbErr != nil {
				e.log.Error("Failed to record metadata sync failure", "embedding_id", it.emb.ID, "error", dbErr)
			}
		}
		out.Failed = len(toPush)
		return out, nil
	}

	for _, it := range toPush {
		if err := e.embs.SetMetadata(ctx, nil, it.emb.ID, it.metadataHash, types.MetadataClean); err != nil {
			e.log.Error("Failed to clear dirty flag", "embedding_id", it.emb.ID, "error", err)
			out.Failed++
			continue
		}
		out.Synced++
	}
	return out, nil
}

// InvalidateUnitMetadata flags every embedding under the given units for a
// metadata re-check. Call it after any unit or document field edit that
// flows into payload metadata.
func (e *syncEngine) InvalidateUnitMetadata(ctx context.Context, unitIDs []uuid.UUID) (int64, error) {
	n, err := e.embs.InvalidateMetadataByUnitIDs(ctx, nil, unitIDs)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info("Invalidated embedding metadata", "units", len(unitIDs), "embeddings", n)
	}
	return n, nil
}

// VerifyBatch confirms pushed nodes are actually readable in Core. Reads are
// rate limited; records past the retry budget go to failed.
func (e *syncEngine) VerifyBatch(ctx context.Context) (*VerifyOutcome, error) {
	cutoff := time.Now().UTC().Add(-e.cfg.VerifyGracePeriod)
	recs, err := e.records.GetUnverified(ctx, nil, cutoff, e.cfg.VerifyBatchSize)
	if err != nil {
		return nil, fmt.Errorf("load unverified records: %w", err)
	}
	out := &VerifyOutcome{Checked: len(recs)}

	for _, rec := range recs {
		if err := e.limiter.Wait(ctx); err != nil {
			return out, err
		}

		_, exists, err := e.core.GetNode(ctx, rec.NodeID.String())
		if err == nil && exists {
			ok, dbErr := e.records.MarkVerified(ctx, nil, rec.ID, time.Now().UTC())
			if dbErr != nil {
				return out, dbErr
			}
			if ok {
				out.Verified++
			}
			continue
		}

		reason := "node not found in Core"
		if err != nil {
			reason = truncateErr(err, e.cfg.MaxSyncErrorLen)
		}
		// A record fails only once it has already burned the full retry
		// budget; the miss that tips it over still counts.
		if rec.RetryCount >= e.cfg.VerifyMaxRetries {
			if _, dbErr := e.records.MarkFailed(ctx, nil, rec.ID, reason); dbErr != nil {
				return out, dbErr
			}
			out.Failed++
			e.log.Warn("Sync record exhausted verification retries",
				"record_id", rec.ID, "node_id", rec.NodeID, "reason", reason)
		} else {
			if _, dbErr := e.records.MarkPendingRetry(ctx, nil, rec.ID, reason); dbErr != nil {
				return out, dbErr
			}
			out.Retried++
		}
	}
	return out, nil
}

// CleanupOrphans removes sync records whose chunk has vanished. The remote
// delete is best effort: the local record goes away either way, and a node
// that survives a failed delete shows up again on the next remote audit.
func (e *syncEngine) CleanupOrphans(ctx context.Context) (*CleanupOutcome, error) {
	orphans, err := e.records.GetOrphans(ctx, nil, e.cfg.CleanupBatchSize)
	if err != nil {
		return nil, fmt.Errorf("load orphaned records: %w", err)
	}
	out := &CleanupOutcome{Found: len(orphans)}

	for _, rec := range orphans {
		if err := e.core.DeleteNode(ctx, rec.NodeID.String()); err != nil {
			out.RemoteFailed++
			e.log.Warn("Orphan remote delete failed", "node_id", rec.NodeID, "error", err)
		} else {
			out.RemoteDeleted++
		}
		if err := e.records.DeleteByIDs(ctx, nil, []uuid.UUID{rec.ID}); err != nil {
			return out, fmt.Errorf("delete orphan record: %w", err)
		}
		out.LocalRemoved++
	}
	return out, nil
}

// DeleteChunks tears down chunks in the order the ledger demands: resolve
// sync records, attempt and audit every remote delete, then drop embeddings,
// records, and finally the chunk rows.
func (e *syncEngine) DeleteChunks(ctx context.Context, chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	recs, err := e.records.GetByChunkIDs(ctx, nil, chunkIDs)
	if err != nil {
		return fmt.Errorf("resolve sync records: %w", err)
	}
	embs, err := e.embs.GetByChunkIDs(ctx, nil, chunkIDs)
	if err != nil {
		return fmt.Errorf("resolve embeddings: %w", err)
	}
	embByChunk := make(map[uuid.UUID]*types.Embedding, len(embs))
	for _, emb := range embs {
		embByChunk[emb.ChunkID] = emb
	}

	now := time.Now().UTC()

	// Remote deletes run concurrently; each attempt is audited before and
	// after so a crash mid-teardown leaves a traceable log entry.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			var embID *uuid.UUID
			if emb, ok := embByChunk[rec.ChunkID]; ok {
				embID = &emb.ID
			}
			nodeID := rec.NodeID
			entry, err := e.delLog.Create(gctx, nil, &types.DeletionLog{
				ChunkID:          rec.ChunkID,
				EmbeddingID:      embID,
				NodeID:           &nodeID,
				Status:           types.DeletionPending,
				DeletedLocallyAt: now,
			})
			if err != nil {
				return fmt.Errorf("audit deletion: %w", err)
			}
			if err := e.core.DeleteNode(gctx, nodeID.String()); err != nil {
				e.log.Warn("Remote delete failed during chunk teardown",
					"chunk_id", rec.ChunkID, "node_id", nodeID, "error", err)
				return e.delLog.MarkRemoteFailed(gctx, nil, entry.ID, truncateErr(err, e.cfg.MaxSyncErrorLen))
			}
			return e.delLog.MarkRemoteDeleted(gctx, nil, entry.ID, time.Now().UTC())
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Chunks with no sync record never reached Core; log them as local-only.
	recorded := make(map[uuid.UUID]bool, len(recs))
	for _, rec := range recs {
		recorded[rec.ChunkID] = true
	}
	for _, chunkID := range chunkIDs {
		if recorded[chunkID] {
			continue
		}
		var embID *uuid.UUID
		if emb, ok := embByChunk[chunkID]; ok {
			embID = &emb.ID
		}
		if _, err := e.delLog.Create(ctx, nil, &types.DeletionLog{
			ChunkID:          chunkID,
			EmbeddingID:      embID,
			Status:           types.DeletionLocalOnly,
			DeletedLocallyAt: now,
		}); err != nil {
			return fmt.Errorf("audit local-only deletion: %w", err)
		}
	}

	recIDs := make([]uuid.UUID, len(recs))
	for i, rec := range recs {
		recIDs[i] = rec.ID
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.embs.DeleteByChunkIDs(ctx, tx, chunkIDs); err != nil {
			return fmt.Errorf("delete embeddings: %w", err)
		}
		if err := e.records.DeleteByIDs(ctx, tx, recIDs); err != nil {
			return fmt.Errorf("delete sync records: %w", err)
		}
		if err := e.chunks.DeleteByIDs(ctx, tx, chunkIDs); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		return nil
	})
}

// DeleteUnit tears down a unit's chunks through the full deletion contract
// and then removes the unit row itself.
func (e *syncEngine) DeleteUnit(ctx context.Context, unitID uuid.UUID) error {
	chunks, err := e.chunks.GetByUnitID(ctx, nil, unitID)
	if err != nil {
		return fmt.Errorf("load unit chunks: %w", err)
	}
	ids := make([]uuid.UUID, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	if err := e.DeleteChunks(ctx, ids); err != nil {
		return err
	}
	return e.unitRepo.Delete(ctx, nil, unitID)
}

// SnapshotStats writes and returns a point-in-time pipeline snapshot.
func (e *syncEngine) SnapshotStats(ctx context.Context) (*types.SyncStats, error) {
	total, err := e.embs.CountTotal(ctx, nil)
	if err != nil {
		return nil, err
	}
	synced, err := e.embs.CountSynced(ctx, nil)
	if err != nil {
		return nil, err
	}
	verified, err := e.records.CountByStatus(ctx, nil, types.SyncStatusVerified)
	if err != nil {
		return nil, err
	}
	failed, err := e.records.CountByStatus(ctx, nil, types.SyncStatusFailed)
	if err != nil {
		return nil, err
	}

	snap := &types.SyncStats{
		TotalEmbeddings: total,
		SyncedCount:     synced,
		VerifiedCount:   verified,
		FailedCount:     failed,
		PendingCount:    total - synced,
	}
	if total > 0 {
		snap.SyncPct = float64(synced) / float64(total) * 100
	}
	if synced > 0 {
		snap.VerifyPct = float64(verified) / float64(synced) * 100
	}
	return e.stats.Create(ctx, nil, snap)
}

// ResyncAll flags every synced embedding for a fresh push. Existing sync
// records are left alone; the new pushes create new ones.
func (e *syncEngine) ResyncAll(ctx context.Context) (int64, error) {
	n, err := e.embs.MarkAllUnsynced(ctx, nil)
	if err != nil {
		return 0, err
	}
	e.log.Info("Flagged embeddings for resync", "count", n)
	return n, nil
}

// buildItem loads the chunk, unit, and document behind an embedding and
// assembles its Core payload. withVector controls whether the stored vector
// is decoded and attached.
func (e *syncEngine) buildItem(ctx context.Context, emb *types.Embedding, withVector bool) (*pushItem, error) {
	chunk, err := e.chunks.GetByID(ctx, nil, emb.ChunkID)
	if err != nil {
		return nil, fmt.Errorf("load chunk: %w", err)
	}
	unit, err := e.unitRepo.GetByID(ctx, nil, chunk.UnitID)
	if err != nil {
		return nil, fmt.Errorf("load unit: %w", err)
	}
	doc, err := e.docRepo.GetByID(ctx, nil, unit.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	var vector []float32
	if withVector {
		if err := json.Unmarshal(emb.Vector, &vector); err != nil {
			return nil, fmt.Errorf("decode vector: %w", err)
		}
	}

	payload := BuildChunkPayload(doc, unit, chunk, emb, vector)
	return &pushItem{
		emb:          emb,
		chunk:        chunk,
		payload:      payload,
		metadataHash: MetadataHash(payload.Metadata),
	}, nil
}

func truncateErr(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if max > 0 && len(msg) > max {
		msg = msg[:max]
	}
	return msg
}
