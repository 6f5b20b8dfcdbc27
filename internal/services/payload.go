package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/qavanin/ingest-backend/internal/clients/coreindex"
	"github.com/qavanin/ingest-backend/internal/types"
)

const dateLayout = "2006-01-02"

// BuildChunkMetadata flattens the document and unit context a chunk carries
// into the filterable metadata Core stores next to the vector.
func BuildChunkMetadata(doc *types.LegalDocument, unit *types.LegalUnit, chunk *types.Chunk) map[string]any {
	tags := []string{}
	if len(unit.Tags) > 0 {
		// Tags are written through the unit service as a JSON string array;
		// anything else in the column degrades to no tags.
		_ = json.Unmarshal(unit.Tags, &tags)
	}
	md := map[string]any{
		"document_id":    doc.ID.String(),
		"document_title": doc.Title,
		"doc_type":       doc.DocType,
		"jurisdiction":   doc.Jurisdiction,
		"authority":      doc.Authority,
		"language":       doc.Language,
		"urn_lex":        doc.URNLex,
		"unit_id":        unit.ID.String(),
		"unit_type":      unit.UnitType,
		"number":         unit.Number,
		"path_label":     unit.PathLabel,
		"tags":           tags,
		"valid_from":     formatDate(unit.ValidFrom),
		"valid_to":       formatDate(unit.ValidTo),
		"ordinal":        chunk.Ordinal,
		"content_hash":   chunk.ContentHash,
		"token_count":    chunk.TokenCount,
	}
	return md
}

// BuildChunkPayload assembles the full Core payload for one embedding.
func BuildChunkPayload(doc *types.LegalDocument, unit *types.LegalUnit, chunk *types.Chunk, emb *types.Embedding, vector []float32) coreindex.EmbeddingPayload {
	return coreindex.EmbeddingPayload{
		EmbeddingID: emb.ID.String(),
		ChunkID:     chunk.ID.String(),
		Text:        chunk.Text,
		Vector:      vector,
		ModelID:     emb.ModelID,
		Metadata:    BuildChunkMetadata(doc, unit, chunk),
	}
}

// MetadataHash is the change-detection fingerprint for a payload's metadata.
// encoding/json writes map keys in sorted order, so equal maps always hash
// equal regardless of construction order.
func MetadataHash(md map[string]any) string {
	raw, err := json.Marshal(md)
	if err != nil {
		// Metadata is built from plain strings and ints; Marshal cannot fail
		// on it. Hash the error text so a future non-serializable field still
		// produces a stable, obviously-wrong value instead of a panic.
		raw = []byte(err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}
