package normalize

import (
	"errors"
	"fmt"
)

// Kind classifies a normalization failure.
type Kind string

const (
	KindInvalidDate         Kind = "InvalidDate"
	KindInvalidAmount       Kind = "InvalidAmount"
	KindMissingField        Kind = "MissingField"
	KindInvalidDocumentType Kind = "InvalidDocumentType"
)

// Error is returned when a raw field map cannot be turned into a
// NormalizedFact. The offending fact is excluded; other facts proceed.
type Error struct {
	Kind   Kind
	Field  string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("normalize: %s: field %q value %q: %s", e.Kind, e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("normalize: %s: field %q: %s", e.Kind, e.Field, e.Reason)
}

// IsKind reports whether err is a normalization Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ne *Error
	return errors.As(err, &ne) && ne.Kind == kind
}
