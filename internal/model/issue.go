package model

// IssueType classifies a billing discrepancy.
type IssueType string

const (
	IssueDuplicateCharge      IssueType = "duplicate_charge"
	IssueMathError            IssueType = "math_error"
	IssueCoverageMismatch     IssueType = "coverage_mismatch"
	IssueBalanceBillingError  IssueType = "balance_billing_error"
	IssueOutOfNetworkFlag     IssueType = "out_of_network_flag"
	IssueMissingReimbursement IssueType = "missing_reimbursement"
	IssueOther                IssueType = "other"
)

// issueRank fixes the emission order of issue types within a cell.
var issueRank = map[IssueType]int{
	IssueDuplicateCharge:      0,
	IssueMathError:            1,
	IssueCoverageMismatch:     2,
	IssueBalanceBillingError:  3,
	IssueOutOfNetworkFlag:     4,
	IssueMissingReimbursement: 5,
	IssueOther:                6,
}

// Rank returns the ordering position of the issue type.
func (t IssueType) Rank() int {
	if r, ok := issueRank[t]; ok {
		return r
	}
	return len(issueRank)
}

// Confidence is the detector's certainty in an issue.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Advisory reports whether the issue should be presented as advisory only.
func (c Confidence) Advisory() bool {
	return c == ConfidenceLow
}

// Issue is a detected billing discrepancy with evidence.
type Issue struct {
	IssueID                string     `json:"issue_id"`
	IssueType              IssueType  `json:"issue_type"`
	Summary                string     `json:"summary"`
	Evidence               []string   `json:"evidence"`
	AffectedTransactionIDs []string   `json:"affected_transaction_ids"`
	CellKey                CellKey    `json:"cell_key"`
	MaxSavingsCents        int64      `json:"max_savings_cents"`
	Confidence             Confidence `json:"confidence"`
}
