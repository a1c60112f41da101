package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimrecon/internal/model"
)

func doc(dt model.DocumentType, seq int64, facts ...map[string]any) model.Document {
	return model.Document{DocumentType: dt, IngestionSequence: seq, Facts: facts}
}

func bill(date, amount, claim string) map[string]any {
	return map[string]any{
		"provider":     "Valley GI Associates, LLC",
		"dos":          date,
		"cpt":          "45378",
		"charge":       amount,
		"claim_number": claim,
	}
}

func run(t *testing.T, batch model.ProfileBatch) *model.Result {
	t.Helper()
	res, err := NewEngine(DefaultOptions()).Reconcile(context.Background(), batch)
	require.NoError(t, err)
	return res
}

func ofType(issues []model.Issue, it model.IssueType) []model.Issue {
	var out []model.Issue
	for _, is := range issues {
		if is.IssueType == it {
			out = append(out, is)
		}
	}
	return out
}

func TestReconcile_DuplicateChargeNotMerged(t *testing.T) {
	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{
			doc(model.DocumentBill, 1, bill("2026-01-12", "$1,450.00", "A100")),
			doc(model.DocumentBill, 2, bill("01/13/2026", "1450", "A100")),
			doc(model.DocumentBill, 3, bill("2026-01-12", "1,450.00", "B200")),
		},
	})

	require.Len(t, res.Transactions, 2)
	assert.Len(t, res.Transactions[0].SourceDocumentIDs, 2)
	assert.Len(t, res.Transactions[1].SourceDocumentIDs, 1)

	dups := ofType(res.Issues, model.IssueDuplicateCharge)
	require.Len(t, dups, 1)
	assert.Equal(t, int64(145000), dups[0].MaxSavingsCents)
	assert.ElementsMatch(t, []string{res.Transactions[0].TransactionID, res.Transactions[1].TransactionID}, dups[0].AffectedTransactionIDs)
}

func TestReconcile_SameServiceForTwoPatientsIsNotDuplicate(t *testing.T) {
	shot := func(patient string) map[string]any {
		return map[string]any{
			"provider": "Northside Pediatrics",
			"dos":      "2026-10-02",
			"cpt":      "90686",
			"charge":   "$45.00",
			"patient":  patient,
		}
	}
	res := run(t, model.ProfileBatch{
		ProfileID: "fam-01",
		Documents: []model.Document{
			doc(model.DocumentBill, 1, shot("alice")),
			doc(model.DocumentBill, 2, shot("bob")),
		},
	})

	require.Len(t, res.Transactions, 2)
	assert.Empty(t, ofType(res.Issues, model.IssueDuplicateCharge))
}

func TestReconcile_SharedAccountNumberAcrossProviders(t *testing.T) {
	visit := func(provider, date string) map[string]any {
		return map[string]any{
			"provider":       provider,
			"dos":            date,
			"cpt":            "99213",
			"charge":         "$150.00",
			"account_number": "1001",
		}
	}
	res := run(t, model.ProfileBatch{
		ProfileID: "fam-01",
		Documents: []model.Document{
			doc(model.DocumentBill, 1, visit("Northside Family Medicine", "2026-01-05")),
			doc(model.DocumentBill, 2, visit("Lakeview Dermatology Clinic", "2026-02-20")),
		},
	})

	require.Len(t, res.Transactions, 2)
	assert.Empty(t, ofType(res.Issues, model.IssueDuplicateCharge))
}

func TestReconcile_PaidFullWithCoverageGap(t *testing.T) {
	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{
			doc(model.DocumentBill, 1, bill("2026-01-12", "1200.00", "")),
			doc(model.DocumentEOB, 2, map[string]any{
				"provider":               "VALLEY GI ASSOCIATES",
				"date_of_service":        "Jan 12, 2026",
				"procedure_code":         "CPT 45378",
				"allowed":                "$900.00",
				"plan_paid":              850,
				"patient_responsibility": 50.00,
				"claim_id":               "CLM-1",
			}),
		},
	})

	require.Len(t, res.Transactions, 1)
	require.Len(t, res.Matrix.Cells, 1)
	assert.Equal(t, model.StatePaidFull, res.Matrix.Cells[0].State)

	require.Len(t, res.Issues, 1)
	assert.Equal(t, model.IssueCoverageMismatch, res.Issues[0].IssueType)
	assert.Equal(t, int64(30000), res.Issues[0].MaxSavingsCents)
}

func TestReconcile_MissingReimbursement(t *testing.T) {
	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Context:   model.ProfileContext{ReimbursableCodes: []string{"D1110"}},
		Documents: []model.Document{
			doc(model.DocumentReceipt, 1, map[string]any{
				"provider": "Bright Smile Dental",
				"date":     "2026-03-02",
				"cdt":      "D1110",
				"amount":   "$90.00",
			}),
		},
	})

	require.Len(t, res.Issues, 1)
	assert.Equal(t, model.IssueMissingReimbursement, res.Issues[0].IssueType)
	assert.Equal(t, int64(9000), res.Issues[0].MaxSavingsCents)
	assert.Equal(t, model.StateReceiptOnly, res.Matrix.Cells[0].State)
}

func TestReconcile_MalformedAmountRejectedOthersProceed(t *testing.T) {
	bad := bill("2026-01-12", "N/A", "")
	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{
			doc(model.DocumentBill, 1, bill("2026-01-12", "200.00", ""), bad),
			doc(model.DocumentBill, 2, map[string]any{
				"provider": "Lakeside Imaging", "dos": "2026-02-01", "cpt": "74177", "charge": "880.00",
			}),
		},
	})

	require.Len(t, res.Rejections, 1)
	rej := res.Rejections[0]
	assert.Equal(t, "InvalidAmount", rej.Kind)
	assert.Equal(t, "billed", rej.Field)
	assert.Equal(t, 1, rej.FactIndex)
	assert.Equal(t, int64(1), rej.Sequence)

	assert.Equal(t, 3, res.Stats.Facts)
	assert.Equal(t, 2, res.Stats.AcceptedFacts)
	assert.Equal(t, 1, res.Stats.RejectedFacts)
	assert.Len(t, res.Transactions, 2)
}

func TestReconcile_DocumentAdmission(t *testing.T) {
	original := model.Document{Content: "%PDF statement", DocumentType: model.DocumentBill, IngestionSequence: 1,
		Facts: []map[string]any{bill("2026-01-12", "200.00", "")}}
	again := original
	again.IngestionSequence = 2
	retyped := original
	retyped.DocumentType = model.DocumentEOB
	retyped.IngestionSequence = 3

	res := run(t, model.ProfileBatch{ProfileID: "p1", Documents: []model.Document{retyped, again, original}})

	assert.Equal(t, 1, res.Stats.Documents)
	require.Len(t, res.Duplicates, 1)
	assert.Equal(t, int64(2), res.Duplicates[0].Sequence)
	assert.Equal(t, int64(1), res.Duplicates[0].OriginalSequence)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, model.DocumentBill, res.Conflicts[0].KeptType)
	assert.Equal(t, model.DocumentEOB, res.Conflicts[0].DroppedType)
	assert.Len(t, res.Transactions, 1)
}

func TestReconcile_ConflictWithoutContent(t *testing.T) {
	facts := bill("2026-01-12", "200.00", "")
	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{
			doc(model.DocumentBill, 1, facts),
			doc(model.DocumentEOB, 2, facts),
		},
	})

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, model.DocumentBill, res.Conflicts[0].KeptType)
	assert.Equal(t, model.DocumentEOB, res.Conflicts[0].DroppedType)
	assert.Equal(t, 1, res.Stats.Documents)
}

func TestReconcile_ExtractorFailureIsZeroFacts(t *testing.T) {
	failed := doc(model.DocumentEOB, 2)
	failed.Content = "scan.png"
	failed.ExtractError = "ocr timeout"

	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{doc(model.DocumentBill, 1, bill("2026-01-12", "200.00", "")), failed},
	})

	require.Len(t, res.Notices, 1)
	assert.Contains(t, res.Notices[0].Message, "ocr timeout")
	assert.Equal(t, 2, res.Stats.Documents)
	assert.Equal(t, 1, res.Stats.AcceptedFacts)
	assert.Empty(t, res.Rejections)
}

func TestReconcile_PermutationInvariant(t *testing.T) {
	docs := []model.Document{
		doc(model.DocumentBill, 1, bill("2026-01-12", "1450", "A1")),
		doc(model.DocumentEOB, 2, map[string]any{
			"provider": "Valley GI Associates", "dos": "2026-01-13", "cpt": "45378",
			"billed": "1450", "allowed": "1000", "paid": "800", "patient_responsibility": "200",
		}),
		doc(model.DocumentBill, 2, bill("2026-01-14", "1450", "A1")),
		doc(model.DocumentBill, 3, bill("2026-01-12", "99", "Z9")),
		doc(model.DocumentReceipt, 4, map[string]any{"provider": "Valley GI", "dos": "2026-01-20", "cpt": "45378", "amount": "200"}),
	}
	reversed := make([]model.Document, len(docs))
	for i := range docs {
		reversed[len(docs)-1-i] = docs[i]
	}

	a := run(t, model.ProfileBatch{ProfileID: "p1", Documents: docs})
	b := run(t, model.ProfileBatch{ProfileID: "p1", Documents: reversed})

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestReconcile_NoSilentLoss(t *testing.T) {
	res := run(t, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{
			doc(model.DocumentBill, 1,
				bill("2026-01-12", "1450", ""),
				bill("2026-01-12", "1450", ""),
				bill("2026-01-12", "bad", ""),
			),
			doc(model.DocumentBill, 2, bill("2026-01-12", "1450", "")),
		},
	})

	sources := 0
	for _, tx := range res.Transactions {
		sources += len(tx.SourceDocumentIDs)
	}
	assert.Equal(t, res.Stats.AcceptedFacts, sources)
	assert.Equal(t, 3, sources)
	// Two line items from one document never share a transaction.
	assert.Len(t, res.Transactions, 2)
}

func TestReconcile_EmptyBatch(t *testing.T) {
	res := run(t, model.ProfileBatch{ProfileID: "p1"})
	assert.Empty(t, res.Transactions)
	assert.Empty(t, res.Issues)
	assert.Equal(t, "p1", res.Matrix.ProfileID)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"issues":[]`)
}

func TestReconcile_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(DefaultOptions()).Reconcile(ctx, model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{doc(model.DocumentBill, 1, bill("2026-01-12", "1450", ""))},
	})
	require.Error(t, err)
}

func TestReconcileAll_IsolatesProfiles(t *testing.T) {
	broken := model.ProfileBatch{
		ProfileID: "p2",
		Documents: []model.Document{doc(model.DocumentBill, 1, map[string]any{"provider": make(chan int)})},
	}
	healthy := model.ProfileBatch{
		ProfileID: "p1",
		Documents: []model.Document{doc(model.DocumentBill, 1, bill("2026-01-12", "1450", ""))},
	}

	out := NewEngine(DefaultOptions()).ReconcileAll(context.Background(), []model.ProfileBatch{healthy, broken})

	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].ProfileID)
	require.NoError(t, out[0].Err)
	assert.Len(t, out[0].Result.Transactions, 1)

	assert.Equal(t, "p2", out[1].ProfileID)
	assert.Error(t, out[1].Err)
	assert.Nil(t, out[1].Result)
}
