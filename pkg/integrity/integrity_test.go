package integrity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clinica-juridica/expediente/internal/testutil"
	"github.com/clinica-juridica/expediente/pkg/blobstore"
	"github.com/clinica-juridica/expediente/pkg/contenthash"
	"github.com/clinica-juridica/expediente/pkg/models"
)

type fixture struct {
	db    *gorm.DB
	store *blobstore.FSStore
	kase  *models.Case
	next  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return &fixture{
		db:    db,
		store: testutil.NewStore(t),
		kase:  testutil.NewCase(t, db),
	}
}

func (f *fixture) file(t *testing.T, name string, content []byte) *models.Document {
	t.Helper()
	f.next++

	key := "documents/2026/10/" + name
	_, err := f.store.Put(context.Background(), key, bytes.NewReader(content))
	require.NoError(t, err)

	doc := &models.Document{
		CaseID:      f.kase.ID,
		Folio:       f.next,
		Name:        name,
		Type:        models.DocumentTypeBrief,
		ContentRef:  key,
		ContentSize: int64(len(content)),
		ContentHash: contenthash.SumBytes(content),
		State:       models.ApprovalStatePending,
		SubmittedBy: "student-1",
		SubmittedAt: time.Now(),
	}
	require.NoError(t, doc.Create(f.db))
	return doc
}

func (f *fixture) count(t *testing.T, doc *models.Document, action models.ActivityAction) int64 {
	t.Helper()
	n, err := models.CountActivity(f.db, doc.ID, action)
	require.NoError(t, err)
	return n
}

func (f *fixture) reload(t *testing.T, doc *models.Document) *models.Document {
	t.Helper()
	got := &models.Document{}
	require.NoError(t, got.Get(f.db, doc.ID))
	return got
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, alert Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func TestChecker_Check(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	checker := NewChecker(f.store)

	t.Run("valid", func(t *testing.T) {
		doc := f.file(t, "valid", []byte("hello"))
		res := checker.Check(ctx, doc)
		assert.True(t, res.Valid())
		assert.Equal(t, doc.ContentHash, res.ObservedHash)
	})

	t.Run("tampered", func(t *testing.T) {
		doc := f.file(t, "tampered", []byte("hello"))
		testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))

		res := checker.Check(ctx, doc)
		assert.Equal(t, StatusInvalid, res.Status)
		assert.Equal(t, contenthash.SumBytes([]byte("tampered")), res.ObservedHash)
		assert.False(t, res.Unreadable())
	})

	t.Run("missing", func(t *testing.T) {
		doc := f.file(t, "missing", []byte("hello"))
		testutil.Remove(t, f.store, doc.ContentRef)

		res := checker.Check(ctx, doc)
		assert.Equal(t, StatusMissing, res.Status)
		assert.Empty(t, res.ObservedHash)
	})

	t.Run("no content is valid", func(t *testing.T) {
		res := checker.Check(ctx, &models.Document{Name: "sin archivo"})
		assert.True(t, res.Valid())

		res = checker.Check(ctx, &models.Document{ContentRef: "documents/x"})
		assert.True(t, res.Valid())
	})

	t.Run("check does not write", func(t *testing.T) {
		doc := f.file(t, "readonly", []byte("hello"))
		testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))

		checker.Check(ctx, doc)
		assert.Equal(t, int64(0), f.count(t, doc, models.ActivityActionSecurityAlert))
		assert.Equal(t, models.IntegrityStateNone, f.reload(t, doc).Integrity.State)
	})
}

// failingStore fails every read with an I/O error other than not-found.
type failingStore struct {
	blobstore.Store
}

func (failingStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("input/output error")
}

func TestChecker_Unreadable(t *testing.T) {
	f := newFixture(t)
	doc := f.file(t, "unreadable", []byte("hello"))

	res := NewChecker(failingStore{f.store}).Check(context.Background(), doc)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Empty(t, res.ObservedHash)
	assert.True(t, res.Unreadable())
	assert.False(t, res.Valid())
}

func TestAuditor_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifier := &recordingNotifier{}
	auditor := NewAuditor(f.db, f.store, WithNotifier(notifier))

	demanda := f.file(t, "Demanda", []byte("hello"))
	f.file(t, "Resolución", []byte("world"))

	alerts, err := auditor.AuditCase(ctx, f.kase.ID, "viewer-1")
	require.NoError(t, err)
	assert.Empty(t, alerts)

	testutil.Overwrite(t, f.store, demanda.ContentRef, []byte("tampered"))

	// First view logs one entry.
	alerts, err = auditor.AuditCase(ctx, f.kase.ID, "viewer-1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertModified, alerts[0].Type)
	assert.Equal(t, demanda.ID, alerts[0].Document.ID)
	assert.True(t, alerts[0].Logged)
	assert.Equal(t, int64(1), f.count(t, demanda, models.ActivityActionSecurityAlert))

	got := f.reload(t, demanda)
	hash, ok := got.Integrity.FailedHash()
	require.True(t, ok)
	assert.Equal(t, contenthash.SumBytes([]byte("tampered")), hash)

	// Second view still alerts but does not log again.
	alerts, err = auditor.AuditCase(ctx, f.kase.ID, "viewer-2")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Logged)
	assert.Equal(t, int64(1), f.count(t, demanda, models.ActivityActionSecurityAlert))

	// A different tampering logs exactly once more.
	testutil.Overwrite(t, f.store, demanda.ContentRef, []byte("tampered again"))
	_, err = auditor.AuditCase(ctx, f.kase.ID, "viewer-1")
	require.NoError(t, err)
	_, err = auditor.AuditCase(ctx, f.kase.ID, "viewer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.count(t, demanda, models.ActivityActionSecurityAlert))

	require.Len(t, notifier.alerts, 2)

	entries, err := models.ListActivity(f.db, f.kase.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "viewer-1", entries[0].Actor)
	assert.Contains(t, entries[0].Detail, "hash mismatch")
}

func TestAuditor_SelfHeal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auditor := NewAuditor(f.db, f.store)

	doc := f.file(t, "Escrito", []byte("hello"))
	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))

	res, alert, err := auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	require.NotNil(t, alert)
	assert.True(t, f.reload(t, doc).Integrity.Failing())

	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("hello"))

	res, alert, err = auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Nil(t, alert)

	got := f.reload(t, doc)
	assert.Equal(t, models.IntegrityStateMatches, got.Integrity.State)
	_, ok := got.Integrity.FailedHash()
	assert.False(t, ok)

	// Tampering with the same bytes after healing is a new event.
	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))
	_, alert, err = auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.True(t, alert.Logged)
	assert.Equal(t, int64(2), f.count(t, doc, models.ActivityActionSecurityAlert))
}

func TestAuditor_Missing(t *testing.T) {
	ctx := context.Background()

	t.Run("not logged by default", func(t *testing.T) {
		f := newFixture(t)
		auditor := NewAuditor(f.db, f.store)

		doc := f.file(t, "Oficio", []byte("hello"))
		testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))
		_, _, err := auditor.AuditDocument(ctx, doc, "viewer-1")
		require.NoError(t, err)

		testutil.Remove(t, f.store, doc.ContentRef)
		for i := 0; i < 3; i++ {
			res, alert, err := auditor.AuditDocument(ctx, doc, "viewer-1")
			require.NoError(t, err)
			assert.Equal(t, StatusMissing, res.Status)
			require.NotNil(t, alert)
			assert.Equal(t, AlertMissing, alert.Type)
			assert.Contains(t, alert.Message, "not found on server")
		}

		assert.Equal(t, int64(0), f.count(t, doc, models.ActivityActionContentMissing))

		// Missing content does not heal the mismatch memo.
		got := f.reload(t, doc)
		assert.Equal(t, models.IntegrityStateMismatch, got.Integrity.State)
	})

	t.Run("logged once when enabled", func(t *testing.T) {
		f := newFixture(t)
		notifier := &recordingNotifier{}
		auditor := NewAuditor(f.db, f.store, WithLogMissing(true), WithNotifier(notifier))

		doc := f.file(t, "Prueba", []byte("hello"))
		testutil.Remove(t, f.store, doc.ContentRef)

		for i := 0; i < 3; i++ {
			alerts, err := auditor.AuditCase(ctx, f.kase.ID, "viewer-1")
			require.NoError(t, err)
			require.Len(t, alerts, 1)
			assert.Equal(t, i == 0, alerts[0].Logged)
		}

		assert.Equal(t, int64(1), f.count(t, doc, models.ActivityActionContentMissing))
		assert.Equal(t, models.IntegrityStateMissing, f.reload(t, doc).Integrity.State)
		assert.Len(t, notifier.alerts, 1)

		// Restored content clears the missing state.
		_, err := f.store.Put(ctx, doc.ContentRef, bytes.NewReader([]byte("hello")))
		require.NoError(t, err)
		alerts, err := auditor.AuditCase(ctx, f.kase.ID, "viewer-1")
		require.NoError(t, err)
		assert.Empty(t, alerts)
		assert.Equal(t, models.IntegrityStateMatches, f.reload(t, doc).Integrity.State)
	})
}

func TestAuditor_Unreadable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auditor := NewAuditor(f.db, failingStore{f.store}, WithLogMissing(true))

	doc := f.file(t, "Informe", []byte("hello"))

	res, alert, err := auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	assert.True(t, res.Unreadable())
	require.NotNil(t, alert)
	assert.Equal(t, AlertModified, alert.Type)
	assert.Contains(t, alert.Message, "could not be read")
	assert.False(t, alert.Logged)

	assert.Equal(t, int64(0), f.count(t, doc, models.ActivityActionSecurityAlert))
	assert.Equal(t, models.IntegrityStateNone, f.reload(t, doc).Integrity.State)
}

func TestAuditor_NotifierFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifier := &recordingNotifier{err: errors.New("broker unavailable")}
	auditor := NewAuditor(f.db, f.store, WithNotifier(notifier))

	doc := f.file(t, "Escrito", []byte("hello"))
	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))

	alerts, err := auditor.AuditCase(ctx, f.kase.ID, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Len(t, notifier.alerts, 1)

	entries, err := models.ListActivity(f.db, f.kase.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SystemActor, entries[0].Actor)
}

// stalledNotifier never delivers; it returns once the context ends.
type stalledNotifier struct{}

func (stalledNotifier) Notify(ctx context.Context, _ Alert) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAuditor_NotifyTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auditor := NewAuditor(f.db, f.store,
		WithNotifier(stalledNotifier{}),
		WithNotifyTimeout(50*time.Millisecond),
	)

	doc := f.file(t, "Demanda", []byte("hello"))
	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))

	start := time.Now()
	res, alert, err := auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StatusInvalid, res.Status)
	require.NotNil(t, alert)
	assert.True(t, alert.Logged)
	assert.Equal(t, int64(1), f.count(t, doc, models.ActivityActionSecurityAlert))
}

func TestAuditor_MissingKeepsFailedHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auditor := NewAuditor(f.db, f.store, WithLogMissing(true))

	doc := f.file(t, "Informe", []byte("hello"))
	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))
	_, alert, err := auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	require.True(t, alert.Logged)

	testutil.Remove(t, f.store, doc.ContentRef)
	_, alert, err = auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	assert.True(t, alert.Logged)

	got := f.reload(t, doc)
	assert.Equal(t, models.IntegrityStateMissing, got.Integrity.State)
	assert.Equal(t, contenthash.SumBytes([]byte("tampered")), got.Integrity.LastFailedHash)

	// The same corrupted bytes coming back are not a new event.
	testutil.Overwrite(t, f.store, doc.ContentRef, []byte("tampered"))
	for i := 0; i < 2; i++ {
		_, alert, err = auditor.AuditDocument(ctx, doc, "viewer-1")
		require.NoError(t, err)
		require.NotNil(t, alert)
		assert.False(t, alert.Logged)
	}
	assert.Equal(t, int64(1), f.count(t, doc, models.ActivityActionSecurityAlert))
	assert.Equal(t, models.IntegrityStateMismatch, f.reload(t, doc).Integrity.State)

	// Losing it again after that is logged once more.
	testutil.Remove(t, f.store, doc.ContentRef)
	_, alert, err = auditor.AuditDocument(ctx, doc, "viewer-1")
	require.NoError(t, err)
	assert.True(t, alert.Logged)
	assert.Equal(t, int64(2), f.count(t, doc, models.ActivityActionContentMissing))
}
