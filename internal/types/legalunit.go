package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LegalUnit is one fragment of a document (article, section, clause...),
// arranged as a tree via ParentID and ordered among siblings by SortKey.
// ValidFrom/ValidTo bound the interval during which the unit is in force;
// ValidTo is inclusive and nil means open-ended. The bounds are only ever
// mutated through the change-application service so that every closed
// interval has a UnitChange row explaining it.
type LegalUnit struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *LegalDocument `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`
	ParentID   *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id"`
	UnitType   string         `gorm:"column:unit_type;not null;default:'article'" json:"unit_type"`
	Number     string         `gorm:"column:number" json:"number"`
	PathLabel  string         `gorm:"column:path_label" json:"path_label"`
	SortKey    int            `gorm:"column:sort_key;not null;default:0" json:"sort_key"`
	Content    string         `gorm:"column:content" json:"content"`
	Tags       datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	ValidFrom  *time.Time     `gorm:"column:valid_from;type:date;index" json:"valid_from"`
	ValidTo    *time.Time     `gorm:"column:valid_to;type:date;index" json:"valid_to"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (LegalUnit) TableName() string {
	return "legal_unit"
}

func (u *LegalUnit) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ActiveOn reports whether the unit is in force on the given calendar date.
func (u *LegalUnit) ActiveOn(on time.Time) bool {
	if u.ValidFrom != nil && on.Before(*u.ValidFrom) {
		return false
	}
	if u.ValidTo != nil && on.After(*u.ValidTo) {
		return false
	}
	return true
}
