// Package integrity re-verifies stored document content against the digest
// recorded when the document was filed.
package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/contenthash"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// Status is the outcome of an integrity check.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusMissing Status = "missing"
)

// Result is the outcome of checking one document. Integrity faults are
// reported here, never as errors.
type Result struct {
	Status Status `json:"status"`

	// ObservedHash is the digest of the content as currently stored. It is
	// empty for missing content and for content that could not be read.
	ObservedHash string `json:"observedHash,omitempty"`

	// Err holds the I/O error when the content could not be read.
	Err error `json:"-"`
}

// Valid reports whether the content matched its recorded digest.
func (r Result) Valid() bool {
	return r.Status == StatusValid
}

// Unreadable reports whether the check failed on an I/O error rather than a
// digest mismatch.
func (r Result) Unreadable() bool {
	return r.Status == StatusInvalid && r.Err != nil
}

// Checker compares stored content with recorded digests. It never writes.
type Checker struct {
	store blobstore.Store
}

// NewChecker returns a checker reading content from store.
func NewChecker(store blobstore.Store) *Checker {
	return &Checker{store: store}
}

// Check re-derives the digest of doc's stored content.
func (c *Checker) Check(ctx context.Context, doc *models.Document) Result {
	if doc.ContentRef == "" || doc.ContentHash == "" {
		return Result{Status: StatusValid}
	}

	rc, err := c.store.Open(ctx, doc.ContentRef)
	if errors.Is(err, blobstore.ErrNotFound) {
		return Result{Status: StatusMissing}
	}
	if err != nil {
		return Result{
			Status: StatusInvalid,
			Err:    fmt.Errorf("error opening content: %w", err),
		}
	}
	defer rc.Close()

	observed, err := contenthash.Sum(rc)
	if err != nil {
		return Result{
			Status: StatusInvalid,
			Err:    fmt.Errorf("error reading content: %w", err),
		}
	}

	if observed != doc.ContentHash {
		return Result{Status: StatusInvalid, ObservedHash: observed}
	}
	return Result{Status: StatusValid, ObservedHash: observed}
}
