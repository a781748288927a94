package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RetiredFolio records the folio of a deleted document so it is never
// assigned again within the case.
type RetiredFolio struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CaseID     uint      `gorm:"not null;uniqueIndex:idx_retired_folios_case_folio,priority:1" json:"caseId"`
	Folio      int       `gorm:"not null;uniqueIndex:idx_retired_folios_case_folio,priority:2" json:"folio"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null" json:"documentId"`
	RetiredAt  time.Time `gorm:"not null" json:"retiredAt"`
}

// TableName specifies the table name.
func (RetiredFolio) TableName() string {
	return "retired_folios"
}

// RetireFolio records that doc's folio may not be reused.
func RetireFolio(db *gorm.DB, doc *Document) error {
	return db.Create(&RetiredFolio{
		CaseID:     doc.CaseID,
		Folio:      doc.Folio,
		DocumentID: doc.ID,
		RetiredAt:  time.Now(),
	}).Error
}

// MaxReservedFolio returns the highest retired folio of a case, or 0.
func MaxReservedFolio(db *gorm.DB, caseID uint) (int, error) {
	var maxFolio int64
	err := db.Model(&RetiredFolio{}).
		Where("case_id = ?", caseID).
		Select("COALESCE(MAX(folio), 0)").
		Row().
		Scan(&maxFolio)
	if err != nil {
		return 0, err
	}
	return int(maxFolio), nil
}
