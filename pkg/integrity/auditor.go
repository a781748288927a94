package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/models"
)

// AlertType classifies a UI-facing integrity alert.
type AlertType string

const (
	AlertModified AlertType = "modified"
	AlertMissing  AlertType = "missing"
)

// SystemActor is recorded in the activity log when an audit has no viewer.
const SystemActor = "system"

// DefaultNotifyTimeout bounds how long an audit waits on its Notifier.
const DefaultNotifyTimeout = 5 * time.Second

// Alert is shown to the viewer of a case for every faulty document, on
// every view, for as long as the fault persists.
type Alert struct {
	Type     AlertType        `json:"type"`
	Message  string           `json:"message"`
	Document *models.Document `json:"document"`

	// Logged is true when this alert produced a new activity-log entry.
	Logged bool `json:"-"`
}

// Notifier receives alerts that produced a new activity-log entry.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Auditor checks the documents of a case, records newly observed faults in
// the case activity log and remembers them on the document so repeated
// views do not log the same fault again.
type Auditor struct {
	db            *gorm.DB
	checker       *Checker
	logger        hclog.Logger
	notifier      Notifier
	notifyTimeout time.Duration
	logMissing    bool
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the auditor's logger.
func WithLogger(logger hclog.Logger) Option {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger.Named("integrity")
		}
	}
}

// WithNotifier forwards newly logged alerts to n.
func WithNotifier(n Notifier) Option {
	return func(a *Auditor) {
		a.notifier = n
	}
}

// WithNotifyTimeout bounds each Notify call. Zero keeps the default.
func WithNotifyTimeout(d time.Duration) Option {
	return func(a *Auditor) {
		if d > 0 {
			a.notifyTimeout = d
		}
	}
}

// WithLogMissing records the first detection of missing content in the
// activity log. By default missing content is only alerted.
func WithLogMissing(enabled bool) Option {
	return func(a *Auditor) {
		a.logMissing = enabled
	}
}

// NewAuditor returns an auditor over the documents in db and the content in
// store.
func NewAuditor(db *gorm.DB, store blobstore.Store, opts ...Option) *Auditor {
	a := &Auditor{
		db:      db,
		checker:       NewChecker(store),
		logger:        hclog.NewNullLogger(),
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AuditCase checks every document of a case in folio order and returns the
// alerts to display. Only a failure to list the documents is returned as an
// error; failures to record a fault are logged.
func (a *Auditor) AuditCase(ctx context.Context, caseID uint, actor string) ([]Alert, error) {
	docs, err := models.ListDocumentsByCase(a.db.WithContext(ctx), caseID)
	if err != nil {
		return nil, fmt.Errorf("error listing documents of case %d: %w", caseID, err)
	}

	var (
		alerts []Alert
		merr   *multierror.Error
	)
	for i := range docs {
		_, alert, err := a.AuditDocument(ctx, &docs[i], actor)
		if err != nil {
			merr = multierror.Append(merr, err)
		}
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		a.logger.Warn("error recording integrity state",
			"case_id", caseID,
			"error", err,
		)
	}

	return alerts, nil
}

// AuditDocument checks one document. It returns the check result, the alert
// to display (nil when the content is valid) and any error recording the
// outcome. doc's integrity memo is updated in place.
func (a *Auditor) AuditDocument(ctx context.Context, doc *models.Document, actor string) (Result, *Alert, error) {
	if actor == "" {
		actor = SystemActor
	}

	res := a.checker.Check(ctx, doc)
	switch {
	case res.Valid():
		return res, nil, a.heal(ctx, doc)

	case res.Status == StatusMissing:
		alert := &Alert{
			Type:     AlertMissing,
			Message:  fmt.Sprintf("Document %q (folio %d) not found on server", doc.Name, doc.Folio),
			Document: doc,
		}
		if !a.logMissing || doc.Integrity.State == models.IntegrityStateMissing {
			return res, alert, nil
		}

		detail := fmt.Sprintf("content of document %q (folio %d) is missing", doc.Name, doc.Folio)
		err := a.record(ctx, doc, actor, models.ActivityActionContentMissing, detail,
			models.MissingMemo(doc.Integrity.LastFailedHash))
		if err != nil {
			return res, alert, err
		}
		alert.Logged = true
		a.notify(ctx, *alert)
		return res, alert, nil

	case res.Unreadable():
		a.logger.Error("error reading document content",
			"document_id", doc.ID,
			"case_id", doc.CaseID,
			"content_ref", doc.ContentRef,
			"error", res.Err,
		)
		return res, &Alert{
			Type:     AlertModified,
			Message:  fmt.Sprintf("Document %q (folio %d) could not be read and cannot be verified", doc.Name, doc.Folio),
			Document: doc,
		}, nil

	default:
		alert := &Alert{
			Type:     AlertModified,
			Message:  fmt.Sprintf("Document %q (folio %d) was modified after it was filed", doc.Name, doc.Folio),
			Document: doc,
		}
		if last, ok := doc.Integrity.FailedHash(); ok && last == res.ObservedHash {
			// The same bad content came back after a logged loss.
			if doc.Integrity.State != models.IntegrityStateMismatch {
				return res, alert, a.remember(ctx, doc, models.MismatchMemo(last))
			}
			return res, alert, nil
		}

		a.logger.Warn("document content does not match recorded hash",
			"document_id", doc.ID,
			"case_id", doc.CaseID,
			"folio", doc.Folio,
			"expected", doc.ContentHash,
			"observed", res.ObservedHash,
		)

		detail := fmt.Sprintf("critical security alert: hash mismatch on document %q (folio %d)", doc.Name, doc.Folio)
		err := a.record(ctx, doc, actor, models.ActivityActionSecurityAlert, detail, models.MismatchMemo(res.ObservedHash))
		if err != nil {
			return res, alert, err
		}
		alert.Logged = true
		a.notify(ctx, *alert)
		return res, alert, nil
	}
}

// heal clears a recorded fault once the content verifies again.
func (a *Auditor) heal(ctx context.Context, doc *models.Document) error {
	if !doc.Integrity.Failing() {
		return nil
	}

	prev := doc.Integrity
	doc.Integrity = models.MatchesMemo()
	if err := doc.SaveIntegrity(a.db.WithContext(ctx)); err != nil {
		doc.Integrity = prev
		return fmt.Errorf("error clearing integrity memo of document %s: %w", doc.ID, err)
	}

	a.logger.Info("document content verified again",
		"document_id", doc.ID,
		"case_id", doc.CaseID,
		"previous_state", prev.State,
	)
	return nil
}

// remember stores a memo without logging anything.
func (a *Auditor) remember(ctx context.Context, doc *models.Document, memo models.IntegrityMemo) error {
	prev := doc.Integrity
	doc.Integrity = memo
	if err := doc.SaveIntegrity(a.db.WithContext(ctx)); err != nil {
		doc.Integrity = prev
		return fmt.Errorf("error storing integrity memo of document %s: %w", doc.ID, err)
	}
	return nil
}

// record appends the activity entry and stores the new memo together.
func (a *Auditor) record(
	ctx context.Context,
	doc *models.Document,
	actor string,
	action models.ActivityAction,
	detail string,
	memo models.IntegrityMemo,
) error {
	docID := doc.ID
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &models.ActivityLogEntry{
			CaseID:     doc.CaseID,
			DocumentID: &docID,
			Actor:      actor,
			Action:     action,
			Detail:     detail,
		}
		if err := entry.Create(tx); err != nil {
			return fmt.Errorf("error creating activity entry: %w", err)
		}

		updated := *doc
		updated.Integrity = memo
		return updated.SaveIntegrity(tx)
	})
	if err != nil {
		return fmt.Errorf("error recording %s for document %s: %w", action, doc.ID, err)
	}

	doc.Integrity = memo
	return nil
}

func (a *Auditor) notify(ctx context.Context, alert Alert) {
	if a.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.notifyTimeout)
	defer cancel()
	if err := a.notifier.Notify(ctx, alert); err != nil {
		a.logger.Error("error publishing integrity alert",
			"document_id", alert.Document.ID,
			"case_id", alert.Document.CaseID,
			"type", alert.Type,
			"error", err,
		)
	}
}
