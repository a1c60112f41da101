package model

import "sort"

// AmountSet is the best-known billed/allowed/paid/patient-responsibility
// view of one document type's contribution. Any field may be nil.
type AmountSet struct {
	Billed                *int64 `json:"billed_cents,omitempty"`
	Allowed               *int64 `json:"allowed_cents,omitempty"`
	Paid                  *int64 `json:"paid_cents,omitempty"`
	PatientResponsibility *int64 `json:"patient_responsibility_cents,omitempty"`
	Adjustment            *int64 `json:"adjustment_cents,omitempty"`
}

// Fields returns the named amount fields in a fixed order.
func (a AmountSet) Fields() []NamedAmount {
	return []NamedAmount{
		{Name: "billed", Cents: a.Billed},
		{Name: "allowed", Cents: a.Allowed},
		{Name: "paid", Cents: a.Paid},
		{Name: "patient_responsibility", Cents: a.PatientResponsibility},
		{Name: "adjustment", Cents: a.Adjustment},
	}
}

// Empty reports whether no amount is populated.
func (a AmountSet) Empty() bool {
	for _, f := range a.Fields() {
		if f.Cents != nil {
			return false
		}
	}
	return true
}

// FillFrom copies fields from other that are nil in a. Existing values are
// never overwritten.
func (a *AmountSet) FillFrom(other AmountSet) {
	if a.Billed == nil {
		a.Billed = copyCents(other.Billed)
	}
	if a.Allowed == nil {
		a.Allowed = copyCents(other.Allowed)
	}
	if a.Paid == nil {
		a.Paid = copyCents(other.Paid)
	}
	if a.PatientResponsibility == nil {
		a.PatientResponsibility = copyCents(other.PatientResponsibility)
	}
	if a.Adjustment == nil {
		a.Adjustment = copyCents(other.Adjustment)
	}
}

// NamedAmount pairs an amount field with its name.
type NamedAmount struct {
	Name  string
	Cents *int64
}

// Contribution records one fact's input into a transaction.
type Contribution struct {
	DocumentID   string            `json:"document_id"`
	DocumentType DocumentType      `json:"document_type"`
	Sequence     int64             `json:"ingestion_sequence"`
	FactIndex    int               `json:"fact_index"`
	ServiceDate  Date              `json:"service_date"`
	ClaimNumber  string            `json:"claim_number,omitempty"`
	Amounts      AmountSet         `json:"amounts"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// CanonicalTransaction is the reconciled representation of one clinical
// billing event. Amounts for a document type are only ever set from a
// document of that type.
type CanonicalTransaction struct {
	TransactionID     string                     `json:"transaction_id"`
	ProfileID         string                     `json:"profile_id"`
	ProviderKey       string                     `json:"provider_key"`
	ProviderName      string                     `json:"provider_name"`
	ProviderID        string                     `json:"provider_id,omitempty"`
	PatientRef        string                     `json:"patient_ref,omitempty"`
	ServiceDate       Date                       `json:"service_date"`
	Code              string                     `json:"code,omitempty"`
	Description       string                     `json:"description,omitempty"`
	Amounts           map[DocumentType]AmountSet `json:"amounts"`
	ClaimNumbers      map[string][]string        `json:"claim_numbers,omitempty"`
	SourceDocumentIDs []string                   `json:"source_document_ids"`
	Contributions     []Contribution             `json:"contributions"`
	MatchConfidence   float64                    `json:"match_confidence"`
}

// HasType reports whether any document of type t contributed.
func (t *CanonicalTransaction) HasType(dt DocumentType) bool {
	_, ok := t.Amounts[dt]
	return ok
}

// Types returns the contributing document types in canonical order.
func (t *CanonicalTransaction) Types() []DocumentType {
	var out []DocumentType
	for _, dt := range DocumentTypes {
		if t.HasType(dt) {
			out = append(out, dt)
		}
	}
	return out
}

// HasSource reports whether documentID already contributed.
func (t *CanonicalTransaction) HasSource(documentID string) bool {
	i := sort.SearchStrings(t.SourceDocumentIDs, documentID)
	return i < len(t.SourceDocumentIDs) && t.SourceDocumentIDs[i] == documentID
}

// AddSource inserts documentID keeping SourceDocumentIDs sorted and unique.
func (t *CanonicalTransaction) AddSource(documentID string) {
	i := sort.SearchStrings(t.SourceDocumentIDs, documentID)
	if i < len(t.SourceDocumentIDs) && t.SourceDocumentIDs[i] == documentID {
		return
	}
	t.SourceDocumentIDs = append(t.SourceDocumentIDs, "")
	copy(t.SourceDocumentIDs[i+1:], t.SourceDocumentIDs[i:])
	t.SourceDocumentIDs[i] = documentID
}

// ReferenceBilled returns the billed amount used for matching: the bill's
// figure when present, then claim, EOB, and receipt.
func (t *CanonicalTransaction) ReferenceBilled() *int64 {
	for _, dt := range DocumentTypes {
		if a, ok := t.Amounts[dt]; ok && a.Billed != nil {
			return a.Billed
		}
	}
	return nil
}

// Payer returns the payer-side amounts, preferring the EOB over the claim.
func (t *CanonicalTransaction) Payer() (AmountSet, DocumentType, bool) {
	if a, ok := t.Amounts[DocumentEOB]; ok {
		a.FillFrom(t.Amounts[DocumentClaim])
		return a, DocumentEOB, true
	}
	if a, ok := t.Amounts[DocumentClaim]; ok {
		return a, DocumentClaim, true
	}
	return AmountSet{}, "", false
}
