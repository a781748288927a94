package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/clinica-juridica/expediente/pkg/integrity"
	"github.com/clinica-juridica/expediente/pkg/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() {
	f.closed = true
}

func testAlert() integrity.Alert {
	return integrity.Alert{
		Type:    integrity.AlertModified,
		Message: `Document "Demanda" (folio 1) was modified after it was filed`,
		Document: &models.Document{
			ID:          uuid.MustParse("7f1d9a2e-4b1c-4c55-9a43-0d0f5d1c2b3a"),
			CaseID:      12,
			Folio:       1,
			Name:        "Demanda",
			ContentHash: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
			Integrity:   models.MismatchMemo("b2c2b6d4ed6e0a7a1a4e50e3a45b7a2e0c4e0d5d5b2f4f1b8c3a8b1e2f3d4c5b"),
		},
		Logged: true,
	}
}

func TestNewAlertMessage(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	msg := NewAlertMessage(testAlert(), now)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, integrity.AlertModified, msg.Type)
	assert.Equal(t, now, msg.Timestamp)
	assert.Equal(t, uint(12), msg.CaseID)
	assert.Equal(t, "7f1d9a2e-4b1c-4c55-9a43-0d0f5d1c2b3a", msg.DocumentID)
	assert.Equal(t, 1, msg.Folio)
	assert.Equal(t, "b2c2b6d4ed6e0a7a1a4e50e3a45b7a2e0c4e0d5d5b2f4f1b8c3a8b1e2f3d4c5b", msg.ObservedHash)
	assert.Equal(t, "case:12", msg.partitionKey())
}

func TestPublisher_Notify(t *testing.T) {
	fake := &fakeProducer{}
	p := newPublisher(fake, "expediente.integrity-alerts", 0, nil)

	require.NoError(t, p.Notify(context.Background(), testAlert()))
	require.Len(t, fake.records, 1)

	rec := fake.records[0]
	assert.Equal(t, "expediente.integrity-alerts", rec.Topic)
	assert.Equal(t, "case:12", string(rec.Key))

	var msg AlertMessage
	require.NoError(t, json.Unmarshal(rec.Value, &msg))
	assert.Equal(t, integrity.AlertModified, msg.Type)
	assert.Equal(t, "Demanda", msg.DocumentName)

	p.Close()
	assert.True(t, fake.closed)
}

func TestPublisher_NotifyError(t *testing.T) {
	fake := &fakeProducer{err: errors.New("broker unavailable")}
	p := newPublisher(fake, "expediente.integrity-alerts", 0, nil)

	err := p.Notify(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish alert")
}

// blockingProducer never delivers; it returns once the context ends.
type blockingProducer struct{}

func (blockingProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	<-ctx.Done()
	var results kgo.ProduceResults
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: ctx.Err()})
	}
	return results
}

func (blockingProducer) Close() {}

func TestPublisher_NotifyTimeout(t *testing.T) {
	p := newPublisher(blockingProducer{}, "expediente.integrity-alerts", 50*time.Millisecond, nil)

	start := time.Now()
	err := p.Notify(context.Background(), testAlert())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewAlertMessage_Missing(t *testing.T) {
	alert := testAlert()
	alert.Type = integrity.AlertMissing
	alert.Document.Integrity = models.MissingMemo(alert.Document.Integrity.LastFailedHash)

	msg := NewAlertMessage(alert, time.Now())
	assert.Equal(t, integrity.AlertMissing, msg.Type)
	assert.Empty(t, msg.ObservedHash)
}

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{Topic: "t"})
	assert.Error(t, err)

	_, err = NewPublisher(PublisherConfig{Brokers: []string{"localhost:19092"}})
	assert.Error(t, err)
}
