package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DeletionPending   = "pending"
	DeletionSuccess   = "success"
	DeletionFailed    = "failed"
	DeletionLocalOnly = "local_only"
)

// DeletionLog records every remote-delete attempt made while tearing down a
// chunk. The remote index has no cascade of its own, so this audit trail is
// the only durable record of which node ids were released and when.
type DeletionLog struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChunkID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"chunk_id"`
	EmbeddingID       *uuid.UUID `gorm:"type:uuid" json:"embedding_id"`
	NodeID            *uuid.UUID `gorm:"type:uuid;column:node_id;index" json:"node_id"`
	Status            string     `gorm:"column:status;not null;default:'pending';index" json:"status"`
	DeletedLocallyAt  time.Time  `gorm:"column:deleted_locally_at;not null" json:"deleted_locally_at"`
	DeletedRemotelyAt *time.Time `gorm:"column:deleted_remotely_at" json:"deleted_remotely_at"`
	RetryCount        int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ErrorMessage      string     `gorm:"column:error_message" json:"error_message"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
}

func (DeletionLog) TableName() string {
	return "deletion_log"
}

func (d *DeletionLog) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
