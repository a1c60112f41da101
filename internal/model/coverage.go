package model

import (
	"fmt"
	"sort"
)

// ReconciliationState is the best-known settlement state of a coverage cell.
type ReconciliationState string

const (
	StateBilledOnly    ReconciliationState = "billed_only"
	StateClaimedUnpaid ReconciliationState = "claimed_unpaid"
	StatePaidPartial   ReconciliationState = "paid_partial"
	StatePaidFull      ReconciliationState = "paid_full"
	StateDisputed      ReconciliationState = "disputed"
	StateReceiptOnly   ReconciliationState = "receipt_only"
)

// CellKey identifies a coverage cell.
type CellKey struct {
	ProfileID   string `json:"profile_id"`
	ProviderKey string `json:"provider_key"`
	DateBucket  Date   `json:"service_date_bucket"`
	Code        string `json:"code"`
}

// String renders the key in a stable, sortable form.
func (k CellKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.ProfileID, k.ProviderKey, k.DateBucket, k.Code)
}

// Less orders keys by profile, provider, bucket date, then code.
func (k CellKey) Less(other CellKey) bool {
	if k.ProfileID != other.ProfileID {
		return k.ProfileID < other.ProfileID
	}
	if k.ProviderKey != other.ProviderKey {
		return k.ProviderKey < other.ProviderKey
	}
	if !k.DateBucket.Equal(other.DateBucket) {
		return k.DateBucket.Before(other.DateBucket)
	}
	return k.Code < other.Code
}

// CellConflict records two document types disagreeing on one amount field.
type CellConflict struct {
	Field      string       `json:"field"`
	Left       DocumentType `json:"left"`
	LeftCents  int64        `json:"left_cents"`
	Right      DocumentType `json:"right"`
	RightCents int64        `json:"right_cents"`
}

// Gap returns the absolute difference between the two sides.
func (c CellConflict) Gap() int64 {
	d := c.LeftCents - c.RightCents
	if d < 0 {
		return -d
	}
	return d
}

// CoverageCell aggregates the transactions for one clinical event. It holds
// references to transactions, never copies, and is fully derived.
type CoverageCell struct {
	Key            CellKey                 `json:"key"`
	State          ReconciliationState     `json:"reconciliation_state"`
	TransactionIDs []string                `json:"transaction_ids"`
	DocumentTypes  []DocumentType          `json:"document_types"`
	Summary        AmountSet               `json:"summary"`
	Conflicts      []CellConflict          `json:"conflicts,omitempty"`
	Transactions   []*CanonicalTransaction `json:"-"`
}

// HasType reports whether any transaction in the cell carries type dt.
func (c *CoverageCell) HasType(dt DocumentType) bool {
	for _, t := range c.DocumentTypes {
		if t == dt {
			return true
		}
	}
	return false
}

// CoverageMatrix is the set of coverage cells for one profile, in key order.
type CoverageMatrix struct {
	ProfileID string          `json:"profile_id"`
	Cells     []*CoverageCell `json:"cells"`

	byTxn map[string]*CoverageCell
}

// NewCoverageMatrix sorts cells by key and indexes their transactions.
func NewCoverageMatrix(profileID string, cells []*CoverageCell) *CoverageMatrix {
	sort.Slice(cells, func(i, j int) bool { return cells[i].Key.Less(cells[j].Key) })
	m := &CoverageMatrix{ProfileID: profileID, Cells: cells}
	m.reindex()
	return m
}

func (m *CoverageMatrix) reindex() {
	m.byTxn = make(map[string]*CoverageCell)
	for _, c := range m.Cells {
		for _, id := range c.TransactionIDs {
			m.byTxn[id] = c
		}
	}
}

// CellFor returns the cell holding the given transaction, or nil.
// Matrices decoded from JSON are indexed on first use.
func (m *CoverageMatrix) CellFor(transactionID string) *CoverageCell {
	if m.byTxn == nil {
		m.reindex()
	}
	return m.byTxn[transactionID]
}

// Cell returns the cell with the given key, or nil.
func (m *CoverageMatrix) Cell(key CellKey) *CoverageCell {
	i := sort.Search(len(m.Cells), func(i int) bool { return !m.Cells[i].Key.Less(key) })
	if i < len(m.Cells) && !key.Less(m.Cells[i].Key) {
		return m.Cells[i]
	}
	return nil
}
