// Package detect evaluates billing-issue rules over a coverage matrix.
package detect

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/txn"
)

var issueNamespace = uuid.MustParse("2b8e6d41-7c3a-5f09-9e1d-4a6c8b2f0e73")

// Policy holds the tunable thresholds of the issue rules.
type Policy struct {
	MathToleranceCents int64   `yaml:"math_tolerance_cents" mapstructure:"math_tolerance_cents"`
	CoverageGapPct     float64 `yaml:"coverage_gap_pct" mapstructure:"coverage_gap_pct"`
	HighConfidence     float64 `yaml:"high_match_confidence" mapstructure:"high_match_confidence"`
	MediumConfidence   float64 `yaml:"medium_match_confidence" mapstructure:"medium_match_confidence"`
	HighMarginMultiple float64 `yaml:"high_margin_multiple" mapstructure:"high_margin_multiple"`
}

// DefaultPolicy returns the standard rule thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MathToleranceCents: 1,
		CoverageGapPct:     0.10,
		HighConfidence:     0.9,
		MediumConfidence:   0.7,
		HighMarginMultiple: 2.0,
	}
}

// Detector runs every rule against a matrix. It holds only read-only
// configuration and may be shared between goroutines.
type Detector struct {
	policy             Policy
	tol                txn.Tolerance
	inNetwork          *roster
	outOfNetworkRoster *roster
	reimbursable       map[string]bool
}

// New creates a Detector for one profile's reference data.
func New(policy Policy, tol txn.Tolerance, pc model.ProfileContext) *Detector {
	d := &Detector{
		policy:             policy,
		tol:                tol,
		inNetwork:          newRoster(pc.InNetworkProviders, tol.ProviderSimilarity),
		outOfNetworkRoster: newRoster(pc.OutOfNetworkProviders, tol.ProviderSimilarity),
		reimbursable:       make(map[string]bool, len(pc.ReimbursableCodes)),
	}
	for _, code := range pc.ReimbursableCodes {
		d.reimbursable[normalizeCode(code)] = true
	}
	return d
}

type rule func(*model.CoverageCell) []model.Issue

// Detect returns the issues found in m, ordered by cell, then issue type,
// then issue id. The matrix is not modified.
func (d *Detector) Detect(m *model.CoverageMatrix) []model.Issue {
	rules := []rule{
		d.duplicateCharges,
		d.mathErrors,
		d.coverageMismatch,
		d.balanceBilling,
		d.outOfNetwork,
		d.missingReimbursement,
		d.overpayment,
	}

	var issues []model.Issue
	for _, c := range m.Cells {
		for _, r := range rules {
			issues = append(issues, r(c)...)
		}
	}
	issues = append(issues, d.crossCellDuplicates(m)...)

	order := make(map[string]int, len(m.Cells))
	for i, c := range m.Cells {
		order[c.Key.String()] = i
	}
	sort.SliceStable(issues, func(i, j int) bool {
		ci, cj := order[issues[i].CellKey.String()], order[issues[j].CellKey.String()]
		if ci != cj {
			return ci < cj
		}
		if ri, rj := issues[i].IssueType.Rank(), issues[j].IssueType.Rank(); ri != rj {
			return ri < rj
		}
		return issues[i].IssueID < issues[j].IssueID
	})
	return issues
}

// newIssue fills the derived fields of an issue. Savings are clamped at
// zero and affected ids are sorted.
func (d *Detector) newIssue(t model.IssueType, c *model.CoverageCell, txns []*model.CanonicalTransaction, discriminator string, savings int64, conf model.Confidence) model.Issue {
	ids := make([]string, len(txns))
	for i, tx := range txns {
		ids[i] = tx.TransactionID
	}
	sort.Strings(ids)

	seed := string(t) + "\x00" + strings.Join(ids, ",") + "\x00" + discriminator
	u := uuid.NewSHA1(issueNamespace, []byte(seed))

	if savings < 0 {
		savings = 0
	}
	return model.Issue{
		IssueID:                "iss_" + strings.ReplaceAll(u.String(), "-", "")[:16],
		IssueType:              t,
		AffectedTransactionIDs: ids,
		CellKey:                c.Key,
		MaxSavingsCents:        savings,
		Confidence:             conf,
	}
}

// confidence maps the weakest contributing match and the discrepancy's
// margin over its tolerance to a confidence level.
func (d *Detector) confidence(txns []*model.CanonicalTransaction, margin float64) model.Confidence {
	weakest := 1.0
	for _, tx := range txns {
		weakest = math.Min(weakest, tx.MatchConfidence)
	}
	switch {
	case weakest >= d.policy.HighConfidence && margin > d.policy.HighMarginMultiple:
		return model.ConfidenceHigh
	case weakest >= d.policy.MediumConfidence && margin > 1:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// margin expresses a discrepancy as a multiple of its tolerance.
func margin(discrepancy, tolerance int64) float64 {
	if tolerance <= 0 {
		tolerance = 1
	}
	return float64(discrepancy) / float64(tolerance)
}

func capConfidence(c, limit model.Confidence) model.Confidence {
	rank := map[model.Confidence]int{model.ConfidenceLow: 0, model.ConfidenceMedium: 1, model.ConfidenceHigh: 2}
	if rank[c] > rank[limit] {
		return limit
	}
	return c
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
