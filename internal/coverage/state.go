package coverage

import (
	"github.com/sells-group/claimrecon/internal/model"
)

// slots holds the representative amounts per document type for a cell:
// the earliest transaction carrying that type.
type slots map[model.DocumentType]model.AmountSet

func (b *Builder) derive(c *model.CoverageCell) {
	rep := make(slots)
	for _, dt := range model.DocumentTypes {
		for _, tx := range c.Transactions {
			if a, ok := tx.Amounts[dt]; ok {
				if _, seen := rep[dt]; !seen {
					rep[dt] = a
					c.DocumentTypes = append(c.DocumentTypes, dt)
				}
			}
		}
	}

	payer, payerType, hasPayer := payerAmounts(rep)

	var summary model.AmountSet
	summary.Billed = firstBilled(rep)
	summary.FillFrom(payer)
	summary.FillFrom(rep[model.DocumentBill])
	c.Summary = summary

	c.Conflicts = b.conflicts(c, rep, summary)

	switch {
	case len(c.DocumentTypes) == 1 && c.DocumentTypes[0] == model.DocumentReceipt:
		c.State = model.StateReceiptOnly
	case !hasPayer:
		c.State = model.StateBilledOnly
	case len(c.Conflicts) > 0:
		c.State = model.StateDisputed
	case hasBill(rep) && (payer.Paid == nil || *payer.Paid == 0):
		c.State = model.StateClaimedUnpaid
	default:
		c.State = b.settlement(c, payer, payerType, summary)
	}
}

func hasBill(rep slots) bool {
	_, ok := rep[model.DocumentBill]
	return ok
}

// settlement compares paid plus patient responsibility with the amount the
// payer recognized: allowed when known, otherwise billed. A missing paid
// amount or patient responsibility counts as zero.
func (b *Builder) settlement(c *model.CoverageCell, payer model.AmountSet, payerType model.DocumentType, summary model.AmountSet) model.ReconciliationState {
	ref, refType := payer.Allowed, payerType
	refField := "allowed"
	if ref == nil {
		ref, refType, refField = summary.Billed, billedSource(c), "billed"
	}
	if ref == nil {
		return model.StatePaidPartial
	}

	var settled int64
	if payer.Paid != nil {
		settled = *payer.Paid
	}
	if payer.PatientResponsibility != nil {
		settled += *payer.PatientResponsibility
	}

	diff := settled - *ref
	switch {
	case diff <= b.opts.SettlementCents && diff >= -b.opts.SettlementCents:
		return model.StatePaidFull
	case diff < 0:
		return model.StatePaidPartial
	default:
		c.Conflicts = append(c.Conflicts, model.CellConflict{
			Field:      "paid_plus_responsibility_vs_" + refField,
			Left:       payerType,
			LeftCents:  settled,
			Right:      refType,
			RightCents: *ref,
		})
		return model.StateDisputed
	}
}

// conflicts lists amount disagreements between document types, and between
// payer documents of the same type, that exceed the matching tolerance.
func (b *Builder) conflicts(c *model.CoverageCell, rep slots, summary model.AmountSet) []model.CellConflict {
	var out []model.CellConflict
	add := func(field string, lt model.DocumentType, l *int64, rt model.DocumentType, r *int64) {
		if l == nil || r == nil || b.opts.Match.AmountsMatch(*l, *r) {
			return
		}
		out = append(out, model.CellConflict{Field: field, Left: lt, LeftCents: *l, Right: rt, RightCents: *r})
	}

	bill, hasBill := rep[model.DocumentBill]
	claim, hasClaim := rep[model.DocumentClaim]
	eob, hasEOB := rep[model.DocumentEOB]

	if hasBill && hasClaim {
		add("billed", model.DocumentBill, bill.Billed, model.DocumentClaim, claim.Billed)
	}
	if hasBill && hasEOB {
		add("billed", model.DocumentBill, bill.Billed, model.DocumentEOB, eob.Billed)
	}
	if hasClaim && hasEOB {
		add("billed", model.DocumentClaim, claim.Billed, model.DocumentEOB, eob.Billed)
		add("allowed", model.DocumentClaim, claim.Allowed, model.DocumentEOB, eob.Allowed)
		add("paid", model.DocumentClaim, claim.Paid, model.DocumentEOB, eob.Paid)
	}

	// The payer cannot recognize more than was billed.
	for _, pt := range []model.DocumentType{model.DocumentClaim, model.DocumentEOB} {
		p, ok := rep[pt]
		if !ok || p.Allowed == nil || summary.Billed == nil {
			continue
		}
		if *p.Allowed > *summary.Billed+b.opts.Match.AmountWindow(*p.Allowed, *summary.Billed) {
			out = append(out, model.CellConflict{
				Field: "allowed_exceeds_billed", Left: pt, LeftCents: *p.Allowed,
				Right: billedSource(c), RightCents: *summary.Billed,
			})
		}
	}

	// Two payer documents of the same type disagreeing on the same event.
	for _, pt := range []model.DocumentType{model.DocumentClaim, model.DocumentEOB} {
		first, ok := rep[pt]
		if !ok {
			continue
		}
		for _, tx := range c.Transactions {
			a, ok := tx.Amounts[pt]
			if !ok {
				continue
			}
			add("allowed", pt, first.Allowed, pt, a.Allowed)
			add("paid", pt, first.Paid, pt, a.Paid)
		}
	}
	return out
}

func payerAmounts(rep slots) (model.AmountSet, model.DocumentType, bool) {
	if eob, ok := rep[model.DocumentEOB]; ok {
		eob.FillFrom(rep[model.DocumentClaim])
		return eob, model.DocumentEOB, true
	}
	if claim, ok := rep[model.DocumentClaim]; ok {
		return claim, model.DocumentClaim, true
	}
	return model.AmountSet{}, "", false
}

// firstBilled prefers the provider's own billed figure.
func firstBilled(rep slots) *int64 {
	for _, dt := range model.DocumentTypes {
		if a, ok := rep[dt]; ok && a.Billed != nil {
			v := *a.Billed
			return &v
		}
	}
	return nil
}

func billedSource(c *model.CoverageCell) model.DocumentType {
	for _, dt := range model.DocumentTypes {
		for _, tx := range c.Transactions {
			if a, ok := tx.Amounts[dt]; ok && a.Billed != nil {
				return dt
			}
		}
	}
	return ""
}
