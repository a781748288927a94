// Package folio assigns the sequential position of a document within its
// case file. Allocation is optimistic: the next folio is computed from the
// current maximum and the (case_id, folio) unique index rejects a loser of a
// concurrent race, which the caller retries in a fresh transaction.
package folio

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/pkg/database"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// Allocator computes the next folio for a case. Next must be called inside
// the transaction that inserts the document.
type Allocator interface {
	Next(tx *gorm.DB, caseID uint) (int, error)
}

// MaxPlusOne allocates max(existing folios)+1, or 1 for an empty case.
// Folios of deleted documents are retired rather than freed, so they count
// towards the maximum.
type MaxPlusOne struct{}

// Next returns the next folio for caseID.
func (MaxPlusOne) Next(tx *gorm.DB, caseID uint) (int, error) {
	current, err := models.MaxFolio(tx, caseID)
	if err != nil {
		return 0, fmt.Errorf("error reading current folio: %w", err)
	}

	reserved, err := models.MaxReservedFolio(tx, caseID)
	if err != nil {
		return 0, fmt.Errorf("error reading reserved folio: %w", err)
	}
	if reserved > current {
		current = reserved
	}

	return current + 1, nil
}

// IsConflict reports whether err means another document took the folio.
func IsConflict(err error) bool {
	return database.IsDuplicateKey(err)
}
