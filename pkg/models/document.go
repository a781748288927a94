package models

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/pkg/contenthash"
)

// DocumentType is the declared kind of a filed document.
type DocumentType string

const (
	DocumentTypeBrief      DocumentType = "escrito"
	DocumentTypeResolution DocumentType = "resolucion"
	DocumentTypeOfficial   DocumentType = "oficio"
	DocumentTypeEvidence   DocumentType = "prueba"
	DocumentTypeReport     DocumentType = "informe"
	DocumentTypeOther      DocumentType = "otro"
)

// DocumentTypes returns every valid document type.
func DocumentTypes() []DocumentType {
	return []DocumentType{
		DocumentTypeBrief,
		DocumentTypeResolution,
		DocumentTypeOfficial,
		DocumentTypeEvidence,
		DocumentTypeReport,
		DocumentTypeOther,
	}
}

// ApprovalState is the review state of a document.
type ApprovalState string

const (
	ApprovalStatePending  ApprovalState = "pending"
	ApprovalStateApproved ApprovalState = "approved"
	ApprovalStateRejected ApprovalState = "rejected"
)

// Document is a file filed into a case. CaseID, Folio, ContentRef and
// ContentHash are fixed at creation.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	CaseID uint  `gorm:"not null;uniqueIndex:idx_documents_case_folio,priority:1" json:"caseId"`
	Case   *Case `gorm:"foreignKey:CaseID;constraint:OnDelete:CASCADE" json:"-"`

	// Folio is the 1-based position of the document in its case file.
	Folio int `gorm:"not null;uniqueIndex:idx_documents_case_folio,priority:2" json:"folio"`

	Name string       `gorm:"type:varchar(255);not null" json:"name"`
	Type DocumentType `gorm:"type:varchar(20);not null;default:'escrito'" json:"type"`

	// ContentRef is the blob store key holding the document bytes.
	ContentRef  string `gorm:"type:varchar(1024)" json:"-"`
	ContentSize int64  `json:"contentSize"`

	// ContentHash is the SHA-256 of the content at creation time.
	ContentHash string `gorm:"type:varchar(64)" json:"contentHash"`

	Integrity IntegrityMemo `gorm:"embedded" json:"-"`

	State           ApprovalState `gorm:"type:varchar(20);not null;default:'pending';index" json:"state"`
	RejectionReason string        `gorm:"type:text" json:"rejectionReason,omitempty"`
	ApprovedBy      *string       `gorm:"type:varchar(255)" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time    `json:"approvedAt,omitempty"`

	SubmittedBy string    `gorm:"type:varchar(255);not null" json:"submittedBy"`
	SubmittedAt time.Time `gorm:"not null" json:"submittedAt"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate hook to ensure the document ID and integrity state are set.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Integrity.State == "" {
		d.Integrity.State = IntegrityStateNone
	}
	return nil
}

// Create inserts the document. Callers are expected to have allocated the
// folio inside the same transaction.
func (d *Document) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(d,
		validation.Field(&d.CaseID, validation.Required),
		validation.Field(&d.Folio, validation.Required, validation.Min(1)),
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Type, validation.Required),
		validation.Field(&d.State, validation.Required),
		validation.Field(&d.SubmittedBy, validation.Required),
		validation.Field(&d.ContentHash,
			validation.When(d.ContentRef != "", validation.Required),
			validation.When(d.ContentHash != "", validation.By(validDigest))),
		validation.Field(&d.RejectionReason,
			validation.When(d.State == ApprovalStateRejected, validation.Required)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Create(d).Error
}

func validDigest(value interface{}) error {
	if s, _ := value.(string); !contenthash.Valid(s) {
		return errors.New("must be a hex SHA-256 digest")
	}
	return nil
}

// Get retrieves a document by ID.
func (d *Document) Get(db *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("document id is required")
	}
	return db.First(d, "id = ?", id).Error
}

// Delete removes the document record.
func (d *Document) Delete(db *gorm.DB) error {
	return db.Delete(&Document{}, "id = ?", d.ID).Error
}

// ErrStateChanged is returned by SaveApproval when the stored state no
// longer matches the state the transition started from.
var ErrStateChanged = errors.New("document approval state changed concurrently")

// SaveApproval persists the review fields of the document, provided the
// stored state is still from.
func (d *Document) SaveApproval(db *gorm.DB, from ApprovalState) error {
	res := db.Model(&Document{}).
		Where("id = ? AND state = ?", d.ID, from).
		Updates(map[string]any{
			"state":            d.State,
			"rejection_reason": d.RejectionReason,
			"approved_by":      d.ApprovedBy,
			"approved_at":      d.ApprovedAt,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}

// SaveIntegrity persists only the integrity memo. Concurrent writers race on
// these columns and the last one wins.
func (d *Document) SaveIntegrity(db *gorm.DB) error {
	return db.Model(&Document{}).
		Where("id = ?", d.ID).
		Updates(map[string]any{
			"integrity_state":  d.Integrity.State,
			"last_failed_hash": d.Integrity.LastFailedHash,
		}).Error
}

// ListDocumentsByCase returns the documents of a case ordered by folio.
func ListDocumentsByCase(db *gorm.DB, caseID uint) ([]Document, error) {
	var docs []Document
	err := db.Where("case_id = ?", caseID).
		Order("folio ASC").
		Find(&docs).Error
	return docs, err
}

// MaxFolio returns the highest folio used in a case, or 0 if it has none.
func MaxFolio(db *gorm.DB, caseID uint) (int, error) {
	var maxFolio int64
	err := db.Model(&Document{}).
		Where("case_id = ?", caseID).
		Select("COALESCE(MAX(folio), 0)").
		Row().
		Scan(&maxFolio)
	if err != nil {
		return 0, err
	}
	return int(maxFolio), nil
}
