package detect

import (
	"fmt"
	"sort"

	"github.com/sells-group/claimrecon/internal/model"
)

type chargeKey struct {
	provider string
	claim    string
	code     string
	billed   int64
}

// crossCellDuplicates finds Bill transactions in different cells that share
// a provider, its claim number, the code and the billed amount. Such a
// charge is usually the same service billed again under a later date.
// Claim numbers are only unique per provider.
func (d *Detector) crossCellDuplicates(m *model.CoverageMatrix) []model.Issue {
	groups := make(map[chargeKey][]*model.CanonicalTransaction)
	var keys []chargeKey
	for _, c := range m.Cells {
		for _, tx := range c.Transactions {
			bill, ok := tx.Amounts[model.DocumentBill]
			if !ok || bill.Billed == nil {
				continue
			}
			for _, claim := range tx.ClaimNumbers[model.DocumentBill.Family()] {
				k := chargeKey{provider: tx.ProviderKey, claim: claim, code: tx.Code, billed: *bill.Billed}
				if _, seen := groups[k]; !seen {
					keys = append(keys, k)
				}
				groups[k] = append(groups[k], tx)
			}
		}
	}

	var out []model.Issue
	for _, k := range keys {
		g := groups[k]
		cells := make(map[string]*model.CoverageCell)
		for _, tx := range g {
			c := m.CellFor(tx.TransactionID)
			cells[c.Key.String()] = c
		}
		if len(cells) < 2 {
			continue
		}
		sort.Slice(g, func(i, j int) bool {
			if !g[i].ServiceDate.Equal(g[j].ServiceDate) {
				return g[i].ServiceDate.Before(g[j].ServiceDate)
			}
			return g[i].TransactionID < g[j].TransactionID
		})

		first := m.CellFor(g[0].TransactionID)
		evidence := make([]string, 0, len(g))
		for _, tx := range g {
			evidence = append(evidence, fmt.Sprintf("bill %s on %s billed %s (claim %s)",
				tx.TransactionID, tx.ServiceDate, money(k.billed), k.claim))
		}
		savings := k.billed * int64(len(g)-1)
		conf := capConfidence(d.confidence(g, d.policy.HighMarginMultiple+1), model.ConfidenceMedium)
		is := d.newIssue(model.IssueDuplicateCharge, first, g, "claim:"+k.claim, savings, conf)
		is.Summary = fmt.Sprintf("claim %s billed %d times for %s on different dates", k.claim, len(g), k.code)
		is.Evidence = evidence
		out = append(out, is)
	}
	return out
}
