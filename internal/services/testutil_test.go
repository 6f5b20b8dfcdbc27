package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/qavanin/ingest-backend/internal/clients/coreindex"
	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/repos"
	"github.com/qavanin/ingest-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.LegalDocument{},
		&types.LegalUnit{},
		&types.UnitChange{},
		&types.Chunk{},
		&types.Embedding{},
		&types.SyncRecord{},
		&types.DeletionLog{},
		&types.SyncStats{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testRepos struct {
	docs    repos.LegalDocumentRepo
	units   repos.LegalUnitRepo
	changes repos.UnitChangeRepo
	chunks  repos.ChunkRepo
	embs    repos.EmbeddingRepo
	records repos.SyncRecordRepo
	delLog  repos.DeletionLogRepo
	stats   repos.SyncStatsRepo
}

func newTestRepos(db *gorm.DB) testRepos {
	log := logger.NewNop()
	return testRepos{
		docs:    repos.NewLegalDocumentRepo(db, log),
		units:   repos.NewLegalUnitRepo(db, log),
		changes: repos.NewUnitChangeRepo(db, log),
		chunks:  repos.NewChunkRepo(db, log),
		embs:    repos.NewEmbeddingRepo(db, log),
		records: repos.NewSyncRecordRepo(db, log),
		delLog:  repos.NewDeletionLogRepo(db, log),
		stats:   repos.NewSyncStatsRepo(db, log),
	}
}

func testSyncConfig() SyncConfig {
	return SyncConfig{
		ChunkMaxTokens:     8,
		ChunkOverlapTokens: 2,
		SyncBatchSize:      100,
		MaxSyncErrorLen:    50,
		VerifyGracePeriod:  0,
		VerifyBatchSize:    100,
		VerifyMaxRetries:   3,
		VerifyRatePerSec:   1000,
		CleanupBatchSize:   100,
	}
}

func mustCreateDoc(t *testing.T, r testRepos, title string) *types.LegalDocument {
	t.Helper()
	doc, err := r.docs.Create(context.Background(), nil, &types.LegalDocument{
		Title:        title,
		DocType:      "LAW",
		Jurisdiction: "IR",
		Authority:    "parliament",
		Language:     "fa",
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func mustCreateUnit(t *testing.T, r testRepos, docID uuid.UUID, content string, validFrom *time.Time) *types.LegalUnit {
	t.Helper()
	unit, err := r.units.Create(context.Background(), nil, &types.LegalUnit{
		DocumentID: docID,
		UnitType:   "article",
		Number:     "1",
		PathLabel:  "art. 1",
		SortKey:    1,
		Content:    content,
		ValidFrom:  validFrom,
	})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	return unit
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

// fakeCore is an in-memory stand-in for the Core index client.
type fakeCore struct {
	mu sync.Mutex

	syncErr     error
	nodeIDs     []string
	syncedBatch [][]coreindex.EmbeddingPayload
	syncTypes   []string

	nodes     map[string]bool
	getErr    error
	deleted   []string
	deleteErr error
}

func newFakeCore() *fakeCore {
	return &fakeCore{nodes: map[string]bool{}}
}

func (f *fakeCore) SyncEmbeddings(ctx context.Context, payloads []coreindex.EmbeddingPayload, syncType string) (*coreindex.SyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncedBatch = append(f.syncedBatch, payloads)
	f.syncTypes = append(f.syncTypes, syncType)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	ids := f.nodeIDs
	if ids == nil {
		ids = make([]string, len(payloads))
		for i := range payloads {
			ids[i] = uuid.NewString()
		}
	}
	for _, id := range ids {
		f.nodes[id] = true
	}
	return &coreindex.SyncResponse{NodeIDs: ids, Synced: len(ids)}, nil
}

func (f *fakeCore) GetNode(ctx context.Context, nodeID string) (*coreindex.Node, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	if f.nodes[nodeID] {
		return &coreindex.Node{NodeID: nodeID}, true, nil
	}
	return nil, false, nil
}

func (f *fakeCore) DeleteNode(ctx context.Context, nodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, nodeID)
	delete(f.nodes, nodeID)
	return nil
}

func (f *fakeCore) deletedNodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

// fakeEmbedder returns a fixed-dimension vector derived from input length.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), float32(i), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) ModelID() string { return "fake-embed-v1" }
func (f *fakeEmbedder) Dim() int        { return 3 }

func newTestEngine(t *testing.T, db *gorm.DB, r testRepos, core *fakeCore) SyncEngine {
	t.Helper()
	return NewSyncEngine(
		db, testSyncConfig(),
		r.docs, r.units, r.chunks, r.embs,
		r.records, r.delLog, r.stats,
		core, logger.NewNop(),
	)
}
