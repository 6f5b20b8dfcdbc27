package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Change kinds follow Akoma Ntoso amendment semantics.
const (
	ChangeAmend      = "AMEND"
	ChangeRepeal     = "REPEAL"
	ChangeSubstitute = "SUBSTITUTE"
	ChangeAdd        = "ADD"
	ChangeRemove     = "REMOVE"
)

func ValidChangeKind(kind string) bool {
	switch kind {
	case ChangeAmend, ChangeRepeal, ChangeSubstitute, ChangeAdd, ChangeRemove:
		return true
	}
	return false
}

// UnitChange is the append-only audit record of one temporal transition
// applied to a unit. Created exclusively by ChangeService.ApplyChange.
type UnitChange struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UnitID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"unit_id"`
	Unit           *LegalUnit `gorm:"constraint:OnDelete:CASCADE;foreignKey:UnitID;references:ID" json:"unit,omitempty"`
	Kind           string     `gorm:"column:kind;not null;index" json:"kind"`
	EffectiveDate  time.Time  `gorm:"column:effective_date;type:date;not null;index" json:"effective_date"`
	SupersededByID *uuid.UUID `gorm:"type:uuid" json:"superseded_by_id"`
	SupersededBy   *LegalUnit `gorm:"foreignKey:SupersededByID;references:ID" json:"superseded_by,omitempty"`
	SourceRef      string     `gorm:"column:source_ref" json:"source_ref"`
	Note           string     `gorm:"column:note" json:"note"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
}

func (UnitChange) TableName() string {
	return "unit_change"
}

func (c *UnitChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
