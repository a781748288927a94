package models

// IntegrityState is the outcome remembered from the most recent integrity
// check that changed anything.
type IntegrityState string

const (
	// IntegrityStateNone means no failure has been recorded.
	IntegrityStateNone IntegrityState = "none"

	// IntegrityStateMatches means content matched again after a recorded failure.
	IntegrityStateMatches IntegrityState = "matches"

	// IntegrityStateMismatch means the content differs from the recorded hash.
	IntegrityStateMismatch IntegrityState = "mismatch"

	// IntegrityStateMissing means the loss of the content has been logged.
	IntegrityStateMissing IntegrityState = "missing"
)

// IntegrityMemo suppresses repeated activity-log entries for a fault that
// has already been recorded. LastFailedHash is the last logged bad digest; it
// survives a later loss of the content and never equals the document's
// ContentHash.
type IntegrityMemo struct {
	State          IntegrityState `gorm:"column:integrity_state;type:varchar(20);not null;default:'none'" json:"state"`
	LastFailedHash string         `gorm:"column:last_failed_hash;type:varchar(64)" json:"lastFailedHash,omitempty"`
}

// MismatchMemo returns a memo recording a mismatch with the given digest.
func MismatchMemo(hash string) IntegrityMemo {
	return IntegrityMemo{State: IntegrityStateMismatch, LastFailedHash: hash}
}

// MatchesMemo returns the memo for content that verified after a failure.
func MatchesMemo() IntegrityMemo {
	return IntegrityMemo{State: IntegrityStateMatches}
}

// MissingMemo returns the memo for logged content loss, keeping the last
// logged bad digest so its return is not logged again.
func MissingMemo(lastFailedHash string) IntegrityMemo {
	return IntegrityMemo{State: IntegrityStateMissing, LastFailedHash: lastFailedHash}
}

// FailedHash returns the recorded bad digest, if any.
func (m IntegrityMemo) FailedHash() (string, bool) {
	if m.Failing() && m.LastFailedHash != "" {
		return m.LastFailedHash, true
	}
	return "", false
}

// Failing reports whether the memo records an unresolved fault.
func (m IntegrityMemo) Failing() bool {
	return m.State == IntegrityStateMismatch || m.State == IntegrityStateMissing
}
