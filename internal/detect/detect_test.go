package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimrecon/internal/coverage"
	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/txn"
)

var cents = model.Cents

type slots = map[model.DocumentType]model.AmountSet

func tx(id, code, date string, conf float64, amounts slots) *model.CanonicalTransaction {
	return &model.CanonicalTransaction{
		TransactionID:   id,
		ProfileID:       "p1",
		ProviderKey:     "name:associates-gi-valley",
		ProviderName:    "valley gi associates",
		ServiceDate:     model.MustDate(date),
		Code:            code,
		Amounts:         amounts,
		ClaimNumbers:    map[string][]string{},
		MatchConfidence: conf,
	}
}

func withClaim(t *model.CanonicalTransaction, family, claim string) *model.CanonicalTransaction {
	t.ClaimNumbers[family] = append(t.ClaimNumbers[family], claim)
	return t
}

func detect(pc model.ProfileContext, txns ...*model.CanonicalTransaction) []model.Issue {
	m := coverage.NewBuilder(coverage.DefaultOptions()).Build("p1", txns)
	return New(DefaultPolicy(), txn.DefaultTolerance(), pc).Detect(m)
}

func ofType(issues []model.Issue, t model.IssueType) []model.Issue {
	var out []model.Issue
	for _, is := range issues {
		if is.IssueType == t {
			out = append(out, is)
		}
	}
	return out
}

func TestDetect_DuplicateChargeWithinCell(t *testing.T) {
	issues := detect(model.ProfileContext{},
		withClaim(tx("t1", "45378", "2026-01-12", 1-0.5/3, slots{model.DocumentBill: {Billed: cents(145000)}}), "provider", "A100"),
		withClaim(tx("t2", "45378", "2026-01-12", 1, slots{model.DocumentBill: {Billed: cents(145000)}}), "provider", "B200"),
	)

	require.Len(t, issues, 1)
	is := issues[0]
	assert.Equal(t, model.IssueDuplicateCharge, is.IssueType)
	assert.Equal(t, []string{"t1", "t2"}, is.AffectedTransactionIDs)
	assert.Equal(t, int64(145000), is.MaxSavingsCents)
	assert.Equal(t, model.ConfidenceMedium, is.Confidence)
	assert.Len(t, is.Evidence, 2)
	assert.Contains(t, is.Evidence[0], "$1,450.00")
}

func TestDetect_DuplicateChargeSkipsOtherPatients(t *testing.T) {
	alice := tx("t1", "90686", "2026-10-02", 1, slots{model.DocumentBill: {Billed: cents(4500)}})
	alice.PatientRef = "alice"
	bob := tx("t2", "90686", "2026-10-02", 1, slots{model.DocumentBill: {Billed: cents(4500)}})
	bob.PatientRef = "bob"

	assert.Empty(t, ofType(detect(model.ProfileContext{}, alice, bob), model.IssueDuplicateCharge))

	// An unset patient still groups with either.
	unknown := tx("t3", "90686", "2026-10-02", 1, slots{model.DocumentBill: {Billed: cents(4500)}})
	dups := ofType(detect(model.ProfileContext{}, alice, unknown), model.IssueDuplicateCharge)
	require.Len(t, dups, 1)
	assert.Equal(t, []string{"t1", "t3"}, dups[0].AffectedTransactionIDs)
}

func TestDetect_DuplicateChargeOncePerTransactionSet(t *testing.T) {
	mk := func(id, claim string) *model.CanonicalTransaction {
		return withClaim(tx(id, "45378", "2026-01-12", 1, slots{
			model.DocumentBill: {Billed: cents(145000)},
			model.DocumentEOB:  {Allowed: cents(145000), Paid: cents(145000), PatientResponsibility: cents(0)},
		}), "provider", claim)
	}

	dups := ofType(detect(model.ProfileContext{}, mk("t1", "A100"), mk("t2", "B200")), model.IssueDuplicateCharge)
	require.Len(t, dups, 1)
	assert.Equal(t, []string{"t1", "t2"}, dups[0].AffectedTransactionIDs)
	assert.Equal(t, int64(145000), dups[0].MaxSavingsCents)
}

func TestDetect_CoverageMismatchWithoutAdjustment(t *testing.T) {
	issues := detect(model.ProfileContext{},
		tx("t1", "45378", "2026-01-12", 1, slots{
			model.DocumentBill: {Billed: cents(120000)},
			model.DocumentEOB:  {Allowed: cents(90000), Paid: cents(85000), PatientResponsibility: cents(5000)},
		}),
	)

	require.Len(t, issues, 1)
	is := issues[0]
	assert.Equal(t, model.IssueCoverageMismatch, is.IssueType)
	assert.Equal(t, int64(30000), is.MaxSavingsCents)
	assert.Equal(t, model.ConfidenceHigh, is.Confidence)
	assert.Contains(t, is.Summary, "$300.00")
}

func TestDetect_AdjustmentSuppressesCoverageMismatch(t *testing.T) {
	issues := detect(model.ProfileContext{},
		tx("t1", "45378", "2026-01-12", 1, slots{
			model.DocumentBill: {Billed: cents(120000)},
			model.DocumentEOB: {
				Allowed: cents(90000), Paid: cents(85000),
				PatientResponsibility: cents(5000), Adjustment: cents(30000),
			},
		}),
	)
	assert.Empty(t, issues)
}

func TestDetect_CoverageMismatchOnDisputedCell(t *testing.T) {
	issues := detect(model.ProfileContext{},
		tx("t1", "45378", "2026-01-12", 1, slots{model.DocumentBill: {Billed: cents(120000)}}),
		tx("t2", "45378", "2026-01-13", 1, slots{model.DocumentEOB: {
			Billed: cents(150000), Allowed: cents(110000), Paid: cents(100000), PatientResponsibility: cents(10000),
		}}),
	)

	mismatch := ofType(issues, model.IssueCoverageMismatch)
	require.Len(t, mismatch, 1)
	assert.Equal(t, int64(30000), mismatch[0].MaxSavingsCents)
	assert.Equal(t, []string{"t1", "t2"}, mismatch[0].AffectedTransactionIDs)
}

func TestDetect_MissingReimbursement(t *testing.T) {
	pc := model.ProfileContext{ReimbursableCodes: []string{"d1110"}}
	issues := detect(pc,
		tx("t1", "D1110", "2026-03-02", 1, slots{model.DocumentReceipt: {Billed: cents(9000)}}),
		tx("t2", "D0120", "2026-03-02", 1, slots{model.DocumentReceipt: {Billed: cents(6000)}}),
	)

	require.Len(t, issues, 1)
	is := issues[0]
	assert.Equal(t, model.IssueMissingReimbursement, is.IssueType)
	assert.Equal(t, int64(9000), is.MaxSavingsCents)
	assert.Equal(t, "D1110", is.CellKey.Code)
	assert.Equal(t, model.ConfidenceMedium, is.Confidence)
}

func TestDetect_MathError(t *testing.T) {
	issues := detect(model.ProfileContext{},
		tx("t1", "99213", "2026-02-01", 1, slots{model.DocumentEOB: {
			Billed: cents(20000), Allowed: cents(15000), Paid: cents(10000), PatientResponsibility: cents(3000),
		}}),
	)

	math := ofType(issues, model.IssueMathError)
	require.Len(t, math, 1)
	assert.Equal(t, int64(2000), math[0].MaxSavingsCents)
	assert.Equal(t, model.ConfidenceHigh, math[0].Confidence)
}

func TestDetect_MathWithinTolerance(t *testing.T) {
	issues := detect(model.ProfileContext{},
		tx("t1", "99213", "2026-02-01", 1, slots{model.DocumentEOB: {
			Billed: cents(20000), Allowed: cents(19000), Paid: cents(15000), PatientResponsibility: cents(4001),
		}}),
	)
	assert.Empty(t, ofType(issues, model.IssueMathError))
}

func TestDetect_BalanceBilling(t *testing.T) {
	pc := model.ProfileContext{InNetworkProviders: []string{"Valley GI Associates, LLC"}}
	issues := detect(pc,
		tx("t1", "45378", "2026-01-12", 1, slots{
			model.DocumentBill: {Billed: cents(120000), PatientResponsibility: cents(30000)},
			model.DocumentEOB:  {Allowed: cents(90000), Paid: cents(85000), PatientResponsibility: cents(5000), Adjustment: cents(30000)},
		}),
	)

	bb := ofType(issues, model.IssueBalanceBillingError)
	require.Len(t, bb, 1)
	assert.Equal(t, int64(25000), bb[0].MaxSavingsCents)

	none := detect(model.ProfileContext{},
		tx("t1", "45378", "2026-01-12", 1, slots{
			model.DocumentBill: {Billed: cents(120000), PatientResponsibility: cents(30000)},
			model.DocumentEOB:  {Allowed: cents(90000), Paid: cents(85000), PatientResponsibility: cents(5000), Adjustment: cents(30000)},
		}),
	)
	assert.Empty(t, ofType(none, model.IssueBalanceBillingError))
}

func TestDetect_OutOfNetworkIsAdvisory(t *testing.T) {
	pc := model.ProfileContext{OutOfNetworkProviders: []string{"valley gi associates"}}
	issues := detect(pc,
		tx("t1", "45378", "2026-01-12", 1, slots{model.DocumentEOB: {
			Billed: cents(50000), Allowed: cents(20000), Paid: cents(16000), PatientResponsibility: cents(4000), Adjustment: cents(30000),
		}}),
	)

	oon := ofType(issues, model.IssueOutOfNetworkFlag)
	require.Len(t, oon, 1)
	assert.Equal(t, int64(30000), oon[0].MaxSavingsCents)
	assert.Equal(t, model.ConfidenceLow, oon[0].Confidence)
	assert.True(t, oon[0].Confidence.Advisory())
}

func TestDetect_Overpayment(t *testing.T) {
	issues := detect(model.ProfileContext{},
		tx("t1", "45378", "2026-01-12", 1, slots{model.DocumentEOB: {
			Billed: cents(120000), Allowed: cents(90000), Paid: cents(85000), PatientResponsibility: cents(5000), Adjustment: cents(30000),
		}}),
		tx("t2", "45378", "2026-01-14", 1, slots{model.DocumentReceipt: {Billed: cents(12000)}}),
	)

	other := ofType(issues, model.IssueOther)
	require.Len(t, other, 1)
	assert.Equal(t, int64(7000), other[0].MaxSavingsCents)
	assert.Equal(t, []string{"t1", "t2"}, other[0].AffectedTransactionIDs)
}

func TestDetect_CrossCellDuplicate(t *testing.T) {
	issues := detect(model.ProfileContext{},
		withClaim(tx("t1", "99213", "2026-01-05", 1, slots{model.DocumentBill: {Billed: cents(20000)}}), "provider", "X1"),
		withClaim(tx("t2", "99213", "2026-02-20", 1, slots{model.DocumentBill: {Billed: cents(20000)}}), "provider", "X1"),
	)

	require.Len(t, issues, 1)
	is := issues[0]
	assert.Equal(t, model.IssueDuplicateCharge, is.IssueType)
	assert.Equal(t, int64(20000), is.MaxSavingsCents)
	assert.Equal(t, model.ConfidenceMedium, is.Confidence)
	assert.Equal(t, "2026-01-05", is.CellKey.DateBucket.String())
}

func TestDetect_CrossCellDuplicateRequiresSameProvider(t *testing.T) {
	northside := withClaim(tx("t1", "99213", "2026-01-05", 1, slots{model.DocumentBill: {Billed: cents(15000)}}), "provider", "1001")
	northside.ProviderKey = "name:family-medicine-northside"
	lakeview := withClaim(tx("t2", "99213", "2026-02-20", 1, slots{model.DocumentBill: {Billed: cents(15000)}}), "provider", "1001")
	lakeview.ProviderKey = "name:clinic-dermatology-lakeview"

	assert.Empty(t, ofType(detect(model.ProfileContext{}, northside, lakeview), model.IssueDuplicateCharge))
}

func TestDetect_DeterministicAndNonNegative(t *testing.T) {
	mk := func() []*model.CanonicalTransaction {
		return []*model.CanonicalTransaction{
			withClaim(tx("t1", "45378", "2026-01-12", 0.8, slots{model.DocumentBill: {Billed: cents(145000)}}), "provider", "A1"),
			withClaim(tx("t2", "45378", "2026-01-12", 1, slots{model.DocumentBill: {Billed: cents(145000)}}), "provider", "B2"),
			tx("t3", "99213", "2026-02-01", 1, slots{model.DocumentEOB: {
				Billed: cents(20000), Allowed: cents(25000), Paid: cents(30000), PatientResponsibility: cents(0),
			}}),
			tx("t4", "D1110", "2026-03-02", 1, slots{model.DocumentReceipt: {Billed: cents(9000)}}),
		}
	}
	pc := model.ProfileContext{ReimbursableCodes: []string{"D1110"}, OutOfNetworkProviders: []string{"valley gi associates"}}

	first := detect(pc, mk()...)
	second := detect(pc, mk()...)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	seen := make(map[string]bool)
	for _, is := range first {
		assert.GreaterOrEqual(t, is.MaxSavingsCents, int64(0), is.IssueID)
		assert.False(t, seen[is.IssueID], "duplicate id %s", is.IssueID)
		seen[is.IssueID] = true
		assert.NotEmpty(t, is.AffectedTransactionIDs)
	}
}
