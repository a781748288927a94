package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// CaseStatus is the procedural status of a case.
type CaseStatus string

const (
	CaseStatusInStudy   CaseStatus = "en_estudio"
	CaseStatusInProcess CaseStatus = "en_tramite"
	CaseStatusSentenced CaseStatus = "con_sentencia"
	CaseStatusArchived  CaseStatus = "archivada"
)

// Case is a legal case handled by the clinic. Only the fields needed to own
// documents and activity are modelled here.
type Case struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// RolRIT is the court's case number (RIT/Rol).
	RolRIT string `gorm:"type:varchar(50);uniqueIndex;not null" json:"rolRit"`

	// Caption is the case caption ("carátula").
	Caption string `gorm:"type:varchar(200);not null" json:"caption"`

	Status CaseStatus `gorm:"type:varchar(20);not null;default:'en_estudio'" json:"status"`

	// ResponsibleID identifies the user in charge of the case.
	ResponsibleID string `gorm:"type:varchar(255)" json:"responsibleId,omitempty"`

	Documents []Document `gorm:"foreignKey:CaseID" json:"-"`
}

// TableName specifies the table name.
func (Case) TableName() string {
	return "cases"
}

// Create creates a new case.
func (c *Case) Create(db *gorm.DB) error {
	if c.Status == "" {
		c.Status = CaseStatusInStudy
	}

	if err := validation.ValidateStruct(c,
		validation.Field(&c.RolRIT, validation.Required, validation.Length(1, 50)),
		validation.Field(&c.Caption, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Status, validation.In(
			CaseStatusInStudy,
			CaseStatusInProcess,
			CaseStatusSentenced,
			CaseStatusArchived,
		)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(c).Error
}

// Get retrieves a case by ID.
func (c *Case) Get(db *gorm.DB, id uint) error {
	if err := validation.Validate(id, validation.Required); err != nil {
		return err
	}

	return db.First(c, id).Error
}

// CaseExists reports whether a case with the given ID exists.
func CaseExists(db *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := db.Model(&Case{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListCaseIDs returns the IDs of all cases in ascending order.
func ListCaseIDs(db *gorm.DB) ([]uint, error) {
	var ids []uint
	err := db.Model(&Case{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}
