package model

import "fmt"

// IdentityConflict records two documents sharing a content fingerprint
// with different document types. The earlier sequence is kept.
type IdentityConflict struct {
	DocumentID   string       `json:"document_id"`
	KeptType     DocumentType `json:"kept_type"`
	KeptSequence int64        `json:"kept_sequence"`
	DroppedType  DocumentType `json:"dropped_type"`
	DroppedSeq   int64        `json:"dropped_sequence"`
}

func (c IdentityConflict) Error() string {
	return fmt.Sprintf("identity conflict: document %s claimed as %s (seq %d) and %s (seq %d)",
		c.DocumentID, c.KeptType, c.KeptSequence, c.DroppedType, c.DroppedSeq)
}

// InvariantViolation is a fatal, per-profile consistency failure. The
// profile's batch is aborted and nothing from it is applied.
type InvariantViolation struct {
	ProfileID  string
	DocumentID string
	Sequence   int64
	Detail     string
}

func (e *InvariantViolation) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("invariant violation in profile %s: %s", e.ProfileID, e.Detail)
	}
	return fmt.Sprintf("invariant violation in profile %s (document %s, seq %d): %s",
		e.ProfileID, e.DocumentID, e.Sequence, e.Detail)
}
