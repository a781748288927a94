// Package documents files, reviews and removes case documents. Creation
// stores the content, hashes it while it streams, allocates the folio and
// decides the initial approval state as one unit: either the document is
// committed with all of them or nothing is left behind.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/pkg/approval"
	"github.com/clinica-juridica/expediente/pkg/auth"
	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/contenthash"
	"github.com/clinica-juridica/expediente/pkg/folio"
	"github.com/clinica-juridica/expediente/pkg/integrity"
	"github.com/clinica-juridica/expediente/pkg/models"
)

const (
	// DefaultMaxContentBytes is the default upload limit (10 MiB).
	DefaultMaxContentBytes int64 = 10 << 20

	// DefaultMaxAttempts is how many transactions Create tries before
	// giving up on folio contention.
	DefaultMaxAttempts = 3
)

// Metadata describes a document being filed.
type Metadata struct {
	Name string
	Type models.DocumentType
}

// Validate checks and normalises the metadata.
func (m *Metadata) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Type == "" {
		m.Type = models.DocumentTypeBrief
	}

	types := make([]any, 0, len(models.DocumentTypes()))
	for _, t := range models.DocumentTypes() {
		types = append(types, t)
	}

	err := validation.ValidateStruct(m,
		validation.Field(&m.Name, validation.Required, validation.RuneLength(1, 255)),
		validation.Field(&m.Type, validation.In(types...)),
	)
	if err == nil {
		return nil
	}

	verr := &ValidationError{Message: err.Error(), Err: err}
	var fields validation.Errors
	if errors.As(err, &fields) {
		for _, f := range []string{"Name", "Type"} {
			if ferr, ok := fields[f]; ok {
				verr.Field = strings.ToLower(f)
				verr.Message = ferr.Error()
				break
			}
		}
	}
	return verr
}

// Store owns document records and their content.
type Store struct {
	db              *gorm.DB
	blobs           blobstore.Store
	folios          folio.Allocator
	checker         *integrity.Checker
	logger          hclog.Logger
	maxContentBytes int64
	maxAttempts     int
	backoff         func() backoff.BackOff
	now             func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.Named("documents")
		}
	}
}

// WithAllocator replaces the folio allocator.
func WithAllocator(a folio.Allocator) Option {
	return func(s *Store) {
		s.folios = a
	}
}

// WithMaxContentBytes sets the upload limit. Zero keeps the default.
func WithMaxContentBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxContentBytes = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a store over the records in db and the content in blobs.
func NewStore(db *gorm.DB, blobs blobstore.Store, opts ...Option) *Store {
	s := &Store{
		db:              db,
		blobs:           blobs,
		folios:          folio.MaxPlusOne{},
		checker:         integrity.NewChecker(blobs),
		logger:          hclog.NewNullLogger(),
		maxContentBytes: DefaultMaxContentBytes,
		maxAttempts:     DefaultMaxAttempts,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 100 * time.Millisecond
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create files content into a case on behalf of submitter.
func (s *Store) Create(
	ctx context.Context,
	caseID uint,
	submitter auth.Actor,
	content io.Reader,
	meta Metadata,
) (*models.Document, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if submitter.ID == "" {
		return nil, &ValidationError{Field: "submitter", Message: "cannot be blank"}
	}

	exists, err := models.CaseExists(s.db.WithContext(ctx), caseID)
	if err != nil {
		return nil, fmt.Errorf("error checking case %d: %w", caseID, err)
	}
	if !exists {
		return nil, ErrCaseNotFound
	}

	now := s.now()
	id := uuid.New()
	key := blobstore.NewKey(id, meta.Name, now)

	// Hash while storing so the content is read once and never held in
	// memory as a whole.
	hasher := contenthash.NewWriter()
	limited := io.LimitReader(content, s.maxContentBytes+1)
	size, err := s.blobs.Put(ctx, key, io.TeeReader(limited, hasher))
	if err != nil {
		return nil, &StorageError{Op: "put", Key: key, Err: err}
	}
	if size != hasher.Size() {
		s.discard(ctx, key)
		return nil, &StorageError{
			Op:  "put",
			Key: key,
			Err: fmt.Errorf("stored %d bytes but hashed %d", size, hasher.Size()),
		}
	}

	switch {
	case size > s.maxContentBytes:
		s.discard(ctx, key)
		return nil, &ValidationError{
			Field:   "content",
			Message: fmt.Sprintf("exceeds the maximum size of %d bytes", s.maxContentBytes),
		}
	case size == 0:
		s.discard(ctx, key)
		return nil, &ValidationError{Field: "content", Message: "cannot be empty"}
	}

	doc := &models.Document{
		ID:          id,
		CaseID:      caseID,
		Name:        meta.Name,
		Type:        meta.Type,
		ContentRef:  key,
		ContentSize: size,
		ContentHash: hasher.Hex(),
		SubmittedBy: submitter.ID,
		SubmittedAt: now,
	}
	approval.InitialState(doc, submitter.ID, submitter.Capabilities(), now)

	attempt := 0
	insert := func() error {
		attempt++
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := s.folios.Next(tx, caseID)
			if err != nil {
				return err
			}
			doc.Folio = n

			if err := doc.Create(tx); err != nil {
				return err
			}

			detail := fmt.Sprintf("uploaded document %q (folio %d)", doc.Name, doc.Folio)
			if doc.State == models.ApprovalStateApproved {
				detail += ", approved on submission"
			}
			return s.logActivity(tx, doc, submitter.ID, models.ActivityActionUpload, detail)
		})
		if err == nil {
			return nil
		}
		if folio.IsConflict(err) {
			s.logger.Debug("folio taken by a concurrent submission, retrying",
				"case_id", caseID,
				"folio", doc.Folio,
				"attempt", attempt,
			)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(s.backoff(), uint64(s.maxAttempts-1)), ctx)
	if err := backoff.Retry(insert, b); err != nil {
		s.discard(ctx, key)
		doc.Folio = 0

		if folio.IsConflict(err) {
			s.logger.Warn("folio allocation retries exhausted",
				"case_id", caseID,
				"attempts", attempt,
			)
			return nil, fmt.Errorf("%w: case %d after %d attempts", ErrResourceContention, caseID, attempt)
		}
		return nil, fmt.Errorf("error creating document: %w", err)
	}

	s.logger.Info("document filed",
		"document_id", doc.ID,
		"case_id", caseID,
		"folio", doc.Folio,
		"state", doc.State,
		"size", size,
	)
	return doc, nil
}

// discard removes content written for a document that was not committed.
func (s *Store) discard(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Error("error removing orphaned content",
			"content_ref", key,
			"backend", s.blobs.Name(),
			"error", err,
		)
	}
}

// Get returns a document by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	if err := doc.Get(s.db.WithContext(ctx), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("error getting document %s: %w", id, err)
	}
	return doc, nil
}

// ListByCase returns the documents of a case ordered by folio.
func (s *Store) ListByCase(ctx context.Context, caseID uint) ([]models.Document, error) {
	db := s.db.WithContext(ctx)

	exists, err := models.CaseExists(db, caseID)
	if err != nil {
		return nil, fmt.Errorf("error checking case %d: %w", caseID, err)
	}
	if !exists {
		return nil, ErrCaseNotFound
	}

	docs, err := models.ListDocumentsByCase(db, caseID)
	if err != nil {
		return nil, fmt.Errorf("error listing documents of case %d: %w", caseID, err)
	}
	return docs, nil
}

// Verify re-checks the stored content of doc without changing anything.
func (s *Store) Verify(ctx context.Context, doc *models.Document) integrity.Result {
	return s.checker.Check(ctx, doc)
}

// Delete removes a document and its content. The folio stays retired. A
// failure to remove the content is logged and does not fail the deletion.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	var doc models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := doc.Get(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}

		if err := models.RetireFolio(tx, &doc); err != nil {
			return fmt.Errorf("error retiring folio: %w", err)
		}
		if err := doc.Delete(tx); err != nil {
			return err
		}

		detail := fmt.Sprintf("deleted document %q (folio %d)", doc.Name, doc.Folio)
		return s.logActivity(tx, &doc, actor, models.ActivityActionDeletion, detail)
	})
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("error deleting document %s: %w", id, err)
	}

	if doc.ContentRef != "" {
		err := s.blobs.Delete(ctx, doc.ContentRef)
		switch {
		case errors.Is(err, blobstore.ErrNotFound):
			s.logger.Warn("content of deleted document was already absent",
				"document_id", doc.ID,
				"content_ref", doc.ContentRef,
			)
		case err != nil:
			s.logger.Error("error removing content of deleted document",
				"document_id", doc.ID,
				"content_ref", doc.ContentRef,
				"backend", s.blobs.Name(),
				"error", err,
			)
		}
	}

	s.logger.Info("document deleted",
		"document_id", doc.ID,
		"case_id", doc.CaseID,
		"folio", doc.Folio,
	)
	return nil
}

// Approve approves a pending document. Callers check that actor may review.
func (s *Store) Approve(ctx context.Context, id uuid.UUID, actor string) (*models.Document, error) {
	return s.review(ctx, id, actor, func(doc *models.Document) (models.ActivityAction, string, error) {
		if err := approval.Approve(doc, actor, s.now()); err != nil {
			return "", "", err
		}
		return models.ActivityActionApproval,
			fmt.Sprintf("approved document %q (folio %d)", doc.Name, doc.Folio), nil
	})
}

// Reject rejects a pending document with a reason. Callers check that actor
// may review.
func (s *Store) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*models.Document, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{
			Field:   "reason",
			Message: "cannot be blank",
			Err:     approval.ErrEmptyReason,
		}
	}

	return s.review(ctx, id, actor, func(doc *models.Document) (models.ActivityAction, string, error) {
		if err := approval.Reject(doc, reason); err != nil {
			return "", "", err
		}
		return models.ActivityActionRejection,
			fmt.Sprintf("rejected document %q (folio %d): %s", doc.Name, doc.Folio, doc.RejectionReason), nil
	})
}

type transitionFunc func(doc *models.Document) (models.ActivityAction, string, error)

func (s *Store) review(ctx context.Context, id uuid.UUID, actor string, transition transitionFunc) (*models.Document, error) {
	doc := &models.Document{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := doc.Get(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}

		from := doc.State
		action, detail, err := transition(doc)
		if err != nil {
			return err
		}

		if err := doc.SaveApproval(tx, from); err != nil {
			if errors.Is(err, models.ErrStateChanged) {
				return fmt.Errorf("%w: %v", approval.ErrInvalidTransition, err)
			}
			return err
		}
		return s.logActivity(tx, doc, actor, action, detail)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDocumentNotFound), errors.Is(err, approval.ErrInvalidTransition):
			return nil, err
		case errors.Is(err, approval.ErrEmptyReason):
			return nil, &ValidationError{Field: "reason", Message: "cannot be blank", Err: err}
		}
		return nil, fmt.Errorf("error reviewing document %s: %w", id, err)
	}

	s.logger.Info("document reviewed",
		"document_id", doc.ID,
		"case_id", doc.CaseID,
		"state", doc.State,
		"actor", actor,
	)
	return doc, nil
}

func (s *Store) logActivity(
	tx *gorm.DB,
	doc *models.Document,
	actor string,
	action models.ActivityAction,
	detail string,
) error {
	docID := doc.ID
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
	return nil
}
