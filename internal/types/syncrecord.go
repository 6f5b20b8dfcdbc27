package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SyncRecord statuses. A record is created only on a successful push
// (status synced) and then moves forward only:
//
//	synced -> verified | pending_retry
//	pending_retry -> verified | pending_retry | failed
//
// verified and failed are terminal for the push attempt. The status column
// doubles as the work lease: once a record leaves synced/pending_retry it
// falls out of the verification query.
const (
	SyncStatusSynced       = "synced"
	SyncStatusVerified     = "verified"
	SyncStatusFailed       = "failed"
	SyncStatusPendingRetry = "pending_retry"
)

type SyncRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	NodeID         uuid.UUID      `gorm:"type:uuid;column:node_id;not null;index" json:"node_id"`
	ChunkID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_sync_record_chunk_status" json:"chunk_id"`
	Status         string         `gorm:"column:status;not null;default:'synced';index;index:idx_sync_record_chunk_status" json:"status"`
	SyncedAt       time.Time      `gorm:"column:synced_at;not null;index" json:"synced_at"`
	VerifiedAt     *time.Time     `gorm:"column:verified_at" json:"verified_at"`
	RetryCount     int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	ErrorMessage   string         `gorm:"column:error_message" json:"error_message"`
	RemoteResponse datatypes.JSON `gorm:"column:remote_response;type:jsonb" json:"remote_response"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (SyncRecord) TableName() string {
	return "sync_record"
}

func (r *SyncRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
