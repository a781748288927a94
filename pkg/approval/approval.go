// Package approval implements the review lifecycle of a filed document:
//
//	pending ──approve──▶ approved
//	   │
//	   └────reject────▶ rejected (requires a reason)
//
// Approved and rejected are terminal. Whether an actor may review at all is
// decided by the caller; the functions here only see a capability set.
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinica-juridica/expediente/pkg/auth"
	"github.com/clinica-juridica/expediente/pkg/models"
)

var (
	// ErrInvalidTransition is returned when the document's current state does
	// not allow the requested transition.
	ErrInvalidTransition = errors.New("invalid approval transition")

	// ErrEmptyReason is returned when a rejection has no reason.
	ErrEmptyReason = errors.New("rejection reason is required")
)

// InitialState sets the state of a newly submitted document. Submitters that
// may auto-approve get an approved document; everyone else gets pending.
func InitialState(doc *models.Document, submitter string, caps auth.Capabilities, now time.Time) {
	doc.RejectionReason = ""
	if !caps.AutoApprove {
		doc.State = models.ApprovalStatePending
		doc.ApprovedBy = nil
		doc.ApprovedAt = nil
		return
	}

	doc.State = models.ApprovalStateApproved
	doc.ApprovedBy = &submitter
	approvedAt := now
	doc.ApprovedAt = &approvedAt
}

// Approve moves a pending document to approved.
func Approve(doc *models.Document, actor string, now time.Time) error {
	if doc.State != models.ApprovalStatePending {
		return transitionError(doc.State, models.ApprovalStateApproved)
	}

	doc.State = models.ApprovalStateApproved
	doc.ApprovedBy = &actor
	approvedAt := now
	doc.ApprovedAt = &approvedAt
	doc.RejectionReason = ""
	return nil
}

// Reject moves a pending document to rejected. The approval fields are left
// untouched.
func Reject(doc *models.Document, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrEmptyReason
	}
	if doc.State != models.ApprovalStatePending {
		return transitionError(doc.State, models.ApprovalStateRejected)
	}

	doc.State = models.ApprovalStateRejected
	doc.RejectionReason = reason
	return nil
}

func transitionError(from, to models.ApprovalState) error {
	if from == "" {
		from = "<none>"
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
