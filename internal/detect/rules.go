package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/normalize"
)

var money = normalize.FormatCents

// billedOf returns the billed figure of one document type's slot, falling
// back to the transaction's reference billed amount.
func billedOf(tx *model.CanonicalTransaction, dt model.DocumentType) *int64 {
	if a, ok := tx.Amounts[dt]; ok && a.Billed != nil {
		return a.Billed
	}
	return tx.ReferenceBilled()
}

// samePatient reports whether two transactions may belong to one patient.
// An unset reference matches anyone.
func samePatient(a, b *model.CanonicalTransaction) bool {
	return a.PatientRef == "" || b.PatientRef == "" || a.PatientRef == b.PatientRef
}

func txnSet(g []*model.CanonicalTransaction) string {
	ids := make([]string, len(g))
	for i, tx := range g {
		ids[i] = tx.TransactionID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// duplicateCharges flags same-type transactions in one cell that carry the
// same billed amount on nearby dates but were kept apart by a stricter
// identity signal. Transactions for different patients never group, and a
// set of transactions is reported once even when several document types
// agree on it.
func (d *Detector) duplicateCharges(c *model.CoverageCell) []model.Issue {
	var out []model.Issue
	reported := make(map[string]bool)
	for _, dt := range model.DocumentTypes {
		if dt == model.DocumentReceipt {
			continue
		}

		var groups [][]*model.CanonicalTransaction
		for _, tx := range c.Transactions {
			if !tx.HasType(dt) || billedOf(tx, dt) == nil {
				continue
			}
			placed := false
			for i, g := range groups {
				anchor := g[0]
				if samePatient(anchor, tx) &&
					anchor.ServiceDate.AbsDays(tx.ServiceDate) <= d.tol.DateDays &&
					d.tol.AmountsMatch(*billedOf(anchor, dt), *billedOf(tx, dt)) {
					groups[i] = append(g, tx)
					placed = true
					break
				}
			}
			if !placed {
				groups = append(groups, []*model.CanonicalTransaction{tx})
			}
		}

		for _, g := range groups {
			if len(g) < 2 || reported[txnSet(g)] {
				continue
			}
			reported[txnSet(g)] = true
			var savings int64
			evidence := make([]string, 0, len(g))
			for i, tx := range g {
				b := *billedOf(tx, dt)
				if i > 0 {
					savings += b
				}
				evidence = append(evidence, fmt.Sprintf("%s %s on %s billed %s (claim %s)",
					dt, tx.TransactionID, tx.ServiceDate, money(b), claimLabel(tx, dt)))
			}
			is := d.newIssue(model.IssueDuplicateCharge, c, g, string(dt), savings, d.confidence(g, math.Inf(1)))
			is.Summary = fmt.Sprintf("%d %s charges for %s on or near %s with the same billed amount", len(g), dt, c.Key.Code, c.Key.DateBucket)
			is.Evidence = evidence
			out = append(out, is)
		}
	}
	return out
}

// view is one side's reading of a transaction's amounts.
type view struct {
	name string
	a    model.AmountSet
}

// mathErrors checks paid + patient responsibility + adjustment against
// billed for each transaction's provider and payer views. When no explicit
// adjustment exists, billed minus allowed stands in for it.
func (d *Detector) mathErrors(c *model.CoverageCell) []model.Issue {
	var out []model.Issue
	for _, tx := range c.Transactions {
		var views []view
		if bill, ok := tx.Amounts[model.DocumentBill]; ok {
			views = append(views, view{name: string(model.DocumentBill), a: bill})
		}
		if payer, dt, ok := tx.Payer(); ok {
			if payer.Billed == nil {
				payer.Billed = tx.ReferenceBilled()
			}
			views = append(views, view{name: string(dt), a: payer})
		}

		for _, v := range views {
			a := v.a
			if a.Billed == nil || a.Paid == nil || a.PatientResponsibility == nil {
				continue
			}
			var adj int64
			switch {
			case a.Adjustment != nil:
				adj = *a.Adjustment
			case a.Allowed != nil:
				adj = *a.Billed - *a.Allowed
			default:
				continue
			}
			total := *a.Paid + *a.PatientResponsibility + adj
			diff := total - *a.Billed
			if diff < 0 {
				diff = -diff
			}
			if diff <= d.policy.MathToleranceCents {
				continue
			}

			txns := []*model.CanonicalTransaction{tx}
			is := d.newIssue(model.IssueMathError, c, txns, v.name, diff, d.confidence(txns, margin(diff, d.policy.MathToleranceCents)))
			is.Summary = fmt.Sprintf("%s amounts for %s do not add up: off by %s", v.name, c.Key.Code, money(diff))
			is.Evidence = []string{
				fmt.Sprintf("billed %s", money(*a.Billed)),
				fmt.Sprintf("paid %s + patient responsibility %s + adjustment %s = %s",
					money(*a.Paid), money(*a.PatientResponsibility), money(adj), money(total)),
			}
			out = append(out, is)
		}
	}
	return out
}

// coverageMismatch flags disputed cells and cells where the payer allowed
// materially less than billed without any recorded adjustment.
func (d *Detector) coverageMismatch(c *model.CoverageCell) []model.Issue {
	var (
		savings  int64
		evidence []string
		mg       float64
		summary  string
	)

	if c.State == model.StateDisputed {
		for _, cf := range c.Conflicts {
			evidence = append(evidence, fmt.Sprintf("%s: %s %s vs %s %s",
				cf.Field, cf.Left, money(cf.LeftCents), cf.Right, money(cf.RightCents)))
			if cf.Gap() > savings {
				savings = cf.Gap()
				mg = margin(cf.Gap(), d.tol.AmountWindow(cf.LeftCents, cf.RightCents))
			}
		}
		summary = fmt.Sprintf("documents disagree on %s for %s", c.Key.Code, c.Key.DateBucket)
	}

	s := c.Summary
	if s.Billed != nil && s.Allowed != nil && *s.Billed > 0 && !hasAdjustment(c) {
		gap := *s.Billed - *s.Allowed
		ratio := float64(gap) / float64(*s.Billed)
		if ratio > d.policy.CoverageGapPct {
			evidence = append(evidence, fmt.Sprintf("billed %s, allowed %s, gap %s with no adjustment recorded",
				money(*s.Billed), money(*s.Allowed), money(gap)))
			if gap > savings {
				savings = gap
				mg = ratio / d.policy.CoverageGapPct
			}
			if summary == "" {
				summary = fmt.Sprintf("allowed amount for %s is %s below billed", c.Key.Code, money(gap))
			}
		}
	}

	if len(evidence) == 0 {
		return nil
	}
	is := d.newIssue(model.IssueCoverageMismatch, c, c.Transactions, "", savings, d.confidence(c.Transactions, mg))
	is.Summary = summary
	is.Evidence = evidence
	return []model.Issue{is}
}

func hasAdjustment(c *model.CoverageCell) bool {
	for _, tx := range c.Transactions {
		for _, a := range tx.Amounts {
			if a.Adjustment != nil {
				return true
			}
		}
	}
	return false
}

// balanceBilling flags an in-network provider charging the patient more
// than allowed minus the plan payment.
func (d *Detector) balanceBilling(c *model.CoverageCell) []model.Issue {
	if !d.inNetwork.matchesCell(c) {
		return nil
	}
	var out []model.Issue
	for _, tx := range c.Transactions {
		payer, dt, ok := tx.Payer()
		if !ok || payer.Allowed == nil || payer.Paid == nil {
			continue
		}
		pr, source := payer.PatientResponsibility, dt
		if bill, ok := tx.Amounts[model.DocumentBill]; ok && bill.PatientResponsibility != nil {
			pr, source = bill.PatientResponsibility, model.DocumentBill
		}
		if pr == nil {
			continue
		}
		owed := *payer.Allowed - *payer.Paid
		excess := *pr - owed
		if excess <= d.policy.MathToleranceCents {
			continue
		}
		txns := []*model.CanonicalTransaction{tx}
		is := d.newIssue(model.IssueBalanceBillingError, c, txns, "", excess, d.confidence(txns, margin(excess, d.policy.MathToleranceCents)))
		is.Summary = fmt.Sprintf("in-network provider asks for %s more than the patient owes for %s", money(excess), c.Key.Code)
		is.Evidence = []string{
			fmt.Sprintf("%s patient responsibility %s", source, money(*pr)),
			fmt.Sprintf("%s allowed %s minus paid %s = %s", dt, money(*payer.Allowed), money(*payer.Paid), money(owed)),
		}
		out = append(out, is)
	}
	return out
}

// outOfNetwork emits an advisory for payer activity with a provider the
// profile marks out of network.
func (d *Detector) outOfNetwork(c *model.CoverageCell) []model.Issue {
	if !d.outOfNetworkRoster.matchesCell(c) || (!c.HasType(model.DocumentEOB) && !c.HasType(model.DocumentClaim)) {
		return nil
	}
	var savings int64
	evidence := []string{fmt.Sprintf("provider %s is out of network", c.Key.ProviderKey)}
	if s := c.Summary; s.Billed != nil && s.Allowed != nil {
		savings = *s.Billed - *s.Allowed
		evidence = append(evidence, fmt.Sprintf("billed %s, allowed %s", money(*s.Billed), money(*s.Allowed)))
	}
	is := d.newIssue(model.IssueOutOfNetworkFlag, c, c.Transactions, "", savings, model.ConfidenceLow)
	is.Summary = fmt.Sprintf("out-of-network service %s on %s", c.Key.Code, c.Key.DateBucket)
	is.Evidence = evidence
	return []model.Issue{is}
}

// missingReimbursement flags out-of-pocket receipts for reimbursable codes
// that never reached a payer.
func (d *Detector) missingReimbursement(c *model.CoverageCell) []model.Issue {
	if c.State != model.StateReceiptOnly || !d.reimbursable[normalizeCode(c.Key.Code)] {
		return nil
	}
	var (
		savings  int64
		evidence []string
	)
	for _, tx := range c.Transactions {
		if a, ok := tx.Amounts[model.DocumentReceipt]; ok && a.Billed != nil {
			savings += *a.Billed
			evidence = append(evidence, fmt.Sprintf("receipt %s on %s for %s", tx.TransactionID, tx.ServiceDate, money(*a.Billed)))
		}
	}
	conf := capConfidence(d.confidence(c.Transactions, math.Inf(1)), model.ConfidenceMedium)
	is := d.newIssue(model.IssueMissingReimbursement, c, c.Transactions, "", savings, conf)
	is.Summary = fmt.Sprintf("%s paid out of pocket for reimbursable code %s with no claim filed", money(savings), c.Key.Code)
	is.Evidence = evidence
	return []model.Issue{is}
}

// overpayment flags a patient receipt larger than the payer's stated
// patient responsibility.
func (d *Detector) overpayment(c *model.CoverageCell) []model.Issue {
	if !c.HasType(model.DocumentReceipt) {
		return nil
	}
	var (
		receipt *model.CanonicalTransaction
		paidOut *int64
	)
	for _, tx := range c.Transactions {
		if a, ok := tx.Amounts[model.DocumentReceipt]; ok && a.Billed != nil {
			receipt, paidOut = tx, a.Billed
			break
		}
	}
	var (
		payerTx *model.CanonicalTransaction
		pr      *int64
	)
	for _, tx := range c.Transactions {
		if p, _, ok := tx.Payer(); ok && p.PatientResponsibility != nil {
			payerTx, pr = tx, p.PatientResponsibility
			break
		}
	}
	if receipt == nil || payerTx == nil {
		return nil
	}
	excess := *paidOut - *pr
	if excess <= d.policy.MathToleranceCents {
		return nil
	}
	txns := []*model.CanonicalTransaction{receipt}
	if payerTx != receipt {
		txns = append(txns, payerTx)
	}
	is := d.newIssue(model.IssueOther, c, txns, "overpayment", excess, d.confidence(txns, margin(excess, d.policy.MathToleranceCents)))
	is.Summary = fmt.Sprintf("patient paid %s more than the plan says they owe for %s", money(excess), c.Key.Code)
	is.Evidence = []string{
		fmt.Sprintf("receipt %s", money(*paidOut)),
		fmt.Sprintf("patient responsibility %s", money(*pr)),
	}
	return []model.Issue{is}
}

func claimLabel(tx *model.CanonicalTransaction, dt model.DocumentType) string {
	if nums := tx.ClaimNumbers[dt.Family()]; len(nums) > 0 {
		return nums[0]
	}
	return "none"
}
