package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Metadata freshness for an embedding's remote projection. Dirty means some
// write touched the unit/document/tags since the last push and the payload
// may need re-sending; the re-push job decides by recomputing the hash.
const (
	MetadataUnknown = "unknown"
	MetadataClean   = "clean"
	MetadataDirty   = "dirty"
)

// Embedding is one vector per (chunk, model). The vector itself is stored as
// a jsonb float array; the remote index is the search surface, the local row
// is the source of truth for re-pushes.
type Embedding struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChunkID        uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uniq_embedding_chunk_model" json:"chunk_id"`
	Chunk          *Chunk         `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChunkID;references:ID" json:"chunk,omitempty"`
	ModelID        string         `gorm:"column:model_id;not null;index;uniqueIndex:uniq_embedding_chunk_model" json:"model_id"`
	Vector         datatypes.JSON `gorm:"column:vector;type:jsonb;not null" json:"vector"`
	Dim            int            `gorm:"column:dim;not null" json:"dim"`
	MetadataHash   string         `gorm:"column:metadata_hash;index" json:"metadata_hash"`
	MetadataState  string         `gorm:"column:metadata_state;not null;default:'unknown';index" json:"metadata_state"`
	SyncedToCore   bool           `gorm:"column:synced_to_core;not null;default:false;index" json:"synced_to_core"`
	SyncedAt       *time.Time     `gorm:"column:synced_at" json:"synced_at"`
	SyncError      string         `gorm:"column:sync_error" json:"sync_error"`
	SyncRetryCount int            `gorm:"column:sync_retry_count;not null;default:0" json:"sync_retry_count"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Embedding) TableName() string {
	return "embedding"
}

func (e *Embedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
