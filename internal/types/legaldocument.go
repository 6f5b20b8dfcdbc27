package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LegalDocument is the work-level record every unit hangs off.
type LegalDocument struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string     `gorm:"column:title;not null" json:"title"`
	DocType      string     `gorm:"column:doc_type;not null;default:'LAW';index" json:"doc_type"`
	Jurisdiction string     `gorm:"column:jurisdiction" json:"jurisdiction"`
	Authority    string     `gorm:"column:authority" json:"authority"`
	Language     string     `gorm:"column:language;not null;default:'fa'" json:"language"`
	URNLex       string     `gorm:"column:urn_lex" json:"urn_lex"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

func (LegalDocument) TableName() string {
	return "legal_document"
}

func (d *LegalDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
