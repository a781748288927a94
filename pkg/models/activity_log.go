package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityAction classifies a case activity-log entry.
type ActivityAction string

const (
	ActivityActionUpload         ActivityAction = "upload"
	ActivityActionApproval       ActivityAction = "approval"
	ActivityActionRejection      ActivityAction = "rejection"
	ActivityActionDeletion       ActivityAction = "deletion"
	ActivityActionSecurityAlert  ActivityAction = "security_alert"
	ActivityActionContentMissing ActivityAction = "content_missing"
)

// ActivityLogEntry is one line of a case's activity log. Entries are
// append-only.
type ActivityLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_case_activity_case_created,priority:2" json:"timestamp"`

	CaseID     uint           `gorm:"not null;index:idx_case_activity_case_created,priority:1" json:"caseId"`
	DocumentID *uuid.UUID     `gorm:"type:uuid;index" json:"documentId,omitempty"`
	Actor      string         `gorm:"type:varchar(255)" json:"actor"`
	Action     ActivityAction `gorm:"type:varchar(30);not null" json:"action"`
	Detail     string         `gorm:"type:text" json:"detail"`
}

// TableName specifies the table name.
func (ActivityLogEntry) TableName() string {
	return "case_activity_log"
}

// Create appends the entry.
func (e *ActivityLogEntry) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(e,
		validation.Field(&e.CaseID, validation.Required),
		validation.Field(&e.Action, validation.Required),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(e).Error
}

// ListActivity returns a case's entries newest first. A zero since returns
// every entry.
func ListActivity(db *gorm.DB, caseID uint, since time.Time) ([]ActivityLogEntry, error) {
	q := db.Where("case_id = ?", caseID)
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}

	var entries []ActivityLogEntry
	err := q.Order("created_at DESC").Order("id DESC").Find(&entries).Error
	return entries, err
}

// CountActivity returns the number of entries of the given action for a
// document.
func CountActivity(db *gorm.DB, documentID uuid.UUID, action ActivityAction) (int64, error) {
	var count int64
	err := db.Model(&ActivityLogEntry{}).
		Where("document_id = ? AND action = ?", documentID, action).
		Count(&count).Error
	return count, err
}
