package model

import (
	"strings"
	"time"
)

// DocumentType labels the kind of billing document a fact was extracted from.
type DocumentType string

const (
	DocumentBill    DocumentType = "bill"
	DocumentEOB     DocumentType = "eob"
	DocumentClaim   DocumentType = "claim"
	DocumentReceipt DocumentType = "receipt"
)

// DocumentTypes lists every document type in canonical slot order.
var DocumentTypes = []DocumentType{DocumentBill, DocumentClaim, DocumentEOB, DocumentReceipt}

// ParseDocumentType maps a loosely written type label to a DocumentType.
func ParseDocumentType(s string) (DocumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bill", "medical_bill", "statement", "invoice":
		return DocumentBill, true
	case "eob", "explanation_of_benefits", "explanation of benefits":
		return DocumentEOB, true
	case "claim", "claim_form":
		return DocumentClaim, true
	case "receipt", "pharmacy_receipt", "dental_receipt":
		return DocumentReceipt, true
	default:
		return "", false
	}
}

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentBill, DocumentEOB, DocumentClaim, DocumentReceipt:
		return true
	}
	return false
}

// IsPayer reports whether the document originates on the insurer side.
func (t DocumentType) IsPayer() bool {
	return t == DocumentEOB || t == DocumentClaim
}

// Family groups document types whose claim numbers are comparable.
// Bills and receipts carry provider account numbers; EOBs and claims
// carry insurer claim numbers.
func (t DocumentType) Family() string {
	if t.IsPayer() {
		return "payer"
	}
	return "provider"
}

// Date is a calendar date with no time component.
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t: t}, nil
}

// MustDate parses a YYYY-MM-DD date and panics on failure.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the date as UTC midnight.
func (d Date) Time() time.Time { return d.t }

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// Equal reports whether both dates name the same day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

// DaysUntil returns the signed number of days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

// AbsDays returns the unsigned number of days between two dates.
func (d Date) AbsDays(other Date) int {
	n := d.DaysUntil(other)
	if n < 0 {
		return -n
	}
	return n
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NormalizedFact is one extracted line item after strict typing. Money is
// integer cents; optional amounts are nil when the document did not state them.
type NormalizedFact struct {
	PatientRef            string            `json:"patient_ref,omitempty"`
	ProviderName          string            `json:"provider_name"`
	ProviderID            string            `json:"provider_id,omitempty"`
	ServiceDate           Date              `json:"service_date"`
	Code                  string            `json:"code,omitempty"`
	Description           string            `json:"description,omitempty"`
	BilledCents           *int64            `json:"billed_amount_cents,omitempty"`
	AllowedCents          *int64            `json:"allowed_amount_cents,omitempty"`
	PaidCents             *int64            `json:"paid_amount_cents,omitempty"`
	PatientResponsibility *int64            `json:"patient_responsibility_cents,omitempty"`
	AdjustmentCents       *int64            `json:"adjustment_cents,omitempty"`
	ClaimNumber           string            `json:"claim_number,omitempty"`
	DocumentType          DocumentType      `json:"document_type"`
	Extras                map[string]string `json:"extras,omitempty"`
}

// Amounts returns the money fields of the fact as an AmountSet.
func (f NormalizedFact) Amounts() AmountSet {
	return AmountSet{
		Billed:                copyCents(f.BilledCents),
		Allowed:               copyCents(f.AllowedCents),
		Paid:                  copyCents(f.PaidCents),
		PatientResponsibility: copyCents(f.PatientResponsibility),
		Adjustment:            copyCents(f.AdjustmentCents),
	}
}

// Cents returns a pointer to v. Convenience for literals and tests.
func Cents(v int64) *int64 {
	return &v
}

func copyCents(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
