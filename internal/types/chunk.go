package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chunk is one embedding-sized slice of a unit's content. The
// (unit_id, content_hash) pair is unique so re-splitting identical content
// is a no-op for the persistence layer. NodeID is the remote index node this
// chunk maps to once pushed; it stays nil until the first successful sync.
type Chunk struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UnitID      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uniq_chunk_unit_hash" json:"unit_id"`
	Unit        *LegalUnit `gorm:"constraint:OnDelete:CASCADE;foreignKey:UnitID;references:ID" json:"unit,omitempty"`
	Ordinal     int        `gorm:"column:ordinal;not null" json:"ordinal"`
	Text        string     `gorm:"column:text;not null" json:"text"`
	TokenCount  int        `gorm:"column:token_count;not null" json:"token_count"`
	OverlapPrev int        `gorm:"column:overlap_prev;not null;default:0" json:"overlap_prev"`
	ContentHash string     `gorm:"column:content_hash;not null;index;uniqueIndex:uniq_chunk_unit_hash" json:"content_hash"`
	NodeID      *uuid.UUID `gorm:"type:uuid;column:node_id;index" json:"node_id"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Chunk) TableName() string {
	return "chunk"
}

func (c *Chunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
