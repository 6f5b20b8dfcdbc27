package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/qavanin/ingest-backend/internal/types"
)

func samplePayloadParts() (*types.LegalDocument, *types.LegalUnit, *types.Chunk) {
	doc := &types.LegalDocument{
		ID:           uuid.New(),
		Title:        "Civil Code",
		DocType:      "LAW",
		Jurisdiction: "IR",
		Authority:    "parliament",
		Language:     "fa",
		URNLex:       "urn:lex:ir:civil.code",
	}
	unit := &types.LegalUnit{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		UnitType:   "article",
		Number:     "10",
		PathLabel:  "book 1 > art. 10",
		ValidFrom:  datePtr(2020, time.January, 1),
	}
	chunk := &types.Chunk{
		ID:          uuid.New(),
		UnitID:      unit.ID,
		Ordinal:     0,
		Text:        "some text",
		TokenCount:  2,
		ContentHash: "abc123",
	}
	return doc, unit, chunk
}

func TestMetadataHashStable(t *testing.T) {
	doc, unit, chunk := samplePayloadParts()
	a := MetadataHash(BuildChunkMetadata(doc, unit, chunk))
	b := MetadataHash(BuildChunkMetadata(doc, unit, chunk))
	if a != b {
		t.Fatalf("hash not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d", len(a))
	}
}

func TestMetadataHashChangesWithTrackedFields(t *testing.T) {
	doc, unit, chunk := samplePayloadParts()
	base := MetadataHash(BuildChunkMetadata(doc, unit, chunk))

	unit.Number = "11"
	if MetadataHash(BuildChunkMetadata(doc, unit, chunk)) == base {
		t.Fatal("hash unchanged after unit number edit")
	}
	unit.Number = "10"

	doc.Title = "Civil Code (consolidated)"
	if MetadataHash(BuildChunkMetadata(doc, unit, chunk)) == base {
		t.Fatal("hash unchanged after document title edit")
	}
	doc.Title = "Civil Code"

	unit.ValidTo = datePtr(2024, time.June, 9)
	if MetadataHash(BuildChunkMetadata(doc, unit, chunk)) == base {
		t.Fatal("hash unchanged after interval close")
	}
	unit.ValidTo = nil

	unit.Tags = datatypes.JSON([]byte(`["tax","property"]`))
	if MetadataHash(BuildChunkMetadata(doc, unit, chunk)) == base {
		t.Fatal("hash unchanged after tag edit")
	}
}

func TestBuildChunkMetadataTags(t *testing.T) {
	doc, unit, chunk := samplePayloadParts()

	md := BuildChunkMetadata(doc, unit, chunk)
	tags, ok := md["tags"].([]string)
	if !ok || len(tags) != 0 {
		t.Fatalf("untagged unit tags = %v", md["tags"])
	}

	unit.Tags = datatypes.JSON([]byte(`["tax","property"]`))
	md = BuildChunkMetadata(doc, unit, chunk)
	tags, ok = md["tags"].([]string)
	if !ok || len(tags) != 2 || tags[0] != "tax" || tags[1] != "property" {
		t.Fatalf("tags = %v", md["tags"])
	}
}

func TestBuildChunkMetadataDates(t *testing.T) {
	doc, unit, chunk := samplePayloadParts()
	unit.ValidTo = datePtr(2024, time.June, 9)

	md := BuildChunkMetadata(doc, unit, chunk)
	if md["valid_from"] != "2020-01-01" {
		t.Fatalf("valid_from = %v", md["valid_from"])
	}
	if md["valid_to"] != "2024-06-09" {
		t.Fatalf("valid_to = %v", md["valid_to"])
	}

	unit.ValidFrom = nil
	md = BuildChunkMetadata(doc, unit, chunk)
	if md["valid_from"] != nil {
		t.Fatalf("nil bound should stay nil, got %v", md["valid_from"])
	}
}

func TestBuildChunkPayload(t *testing.T) {
	doc, unit, chunk := samplePayloadParts()
	emb := &types.Embedding{ID: uuid.New(), ChunkID: chunk.ID, ModelID: "fake-embed-v1"}

	p := BuildChunkPayload(doc, unit, chunk, emb, []float32{1, 2, 3})
	if p.EmbeddingID != emb.ID.String() || p.ChunkID != chunk.ID.String() {
		t.Fatalf("payload ids = %+v", p)
	}
	if p.Text != chunk.Text || p.ModelID != "fake-embed-v1" {
		t.Fatalf("payload = %+v", p)
	}
	if len(p.Vector) != 3 {
		t.Fatalf("vector = %v", p.Vector)
	}
	if p.Metadata["unit_id"] != unit.ID.String() {
		t.Fatalf("metadata = %+v", p.Metadata)
	}
}
