package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncStats is a point-in-time snapshot of the sync pipeline, written
// periodically for the status endpoint. Rows are append-only.
type SyncStats struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TotalEmbeddings int64     `gorm:"column:total_embeddings;not null" json:"total_embeddings"`
	SyncedCount     int64     `gorm:"column:synced_count;not null" json:"synced_count"`
	VerifiedCount   int64     `gorm:"column:verified_count;not null" json:"verified_count"`
	FailedCount     int64     `gorm:"column:failed_count;not null" json:"failed_count"`
	PendingCount    int64     `gorm:"column:pending_count;not null" json:"pending_count"`
	SyncPct         float64   `gorm:"column:sync_pct;not null;default:0" json:"sync_pct"`
	VerifyPct       float64   `gorm:"column:verify_pct;not null;default:0" json:"verify_pct"`
	CreatedAt       time.Time `gorm:"not null;index" json:"created_at"`
}

func (SyncStats) TableName() string {
	return "sync_stats"
}

func (s *SyncStats) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
