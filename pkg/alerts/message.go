// Package alerts publishes integrity alerts to Redpanda/Kafka for downstream
// notification.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinica-juridica/expediente/pkg/integrity"
)

// AlertMessage is the JSON payload published for every newly logged
// integrity alert.
type AlertMessage struct {
	ID        string              `json:"id"`
	Type      integrity.AlertType `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Message   string              `json:"message"`

	CaseID       uint   `json:"caseId"`
	DocumentID   string `json:"documentId"`
	Folio        int    `json:"folio"`
	DocumentName string `json:"documentName"`
	ContentHash  string `json:"contentHash"`

	// ObservedHash is the digest that failed verification, if any.
	ObservedHash string `json:"observedHash,omitempty"`
}

// NewAlertMessage builds the message for alert.
func NewAlertMessage(alert integrity.Alert, now time.Time) *AlertMessage {
	msg := &AlertMessage{
		ID:        uuid.New().String(),
		Type:      alert.Type,
		Timestamp: now,
		Message:   alert.Message,
	}
	if doc := alert.Document; doc != nil {
		msg.CaseID = doc.CaseID
		msg.DocumentID = doc.ID.String()
		msg.Folio = doc.Folio
		msg.DocumentName = doc.Name
		msg.ContentHash = doc.ContentHash
		if h, ok := doc.Integrity.FailedHash(); ok && alert.Type == integrity.AlertModified {
			msg.ObservedHash = h
		}
	}
	return msg
}

// partitionKey keeps the alerts of one case in order.
func (m *AlertMessage) partitionKey() string {
	return fmt.Sprintf("case:%d", m.CaseID)
}
