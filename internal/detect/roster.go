package detect

import (
	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/normalize"
	"github.com/sells-group/claimrecon/internal/provider"
)

// roster matches transactions against a list of provider names or ids.
type roster struct {
	threshold float64
	ids       map[string]bool
	names     [][]string
}

func newRoster(entries []string, threshold float64) *roster {
	r := &roster{threshold: threshold, ids: make(map[string]bool)}
	for _, e := range entries {
		r.ids[e] = true
		if tokens := provider.Tokens(normalize.ProviderName(e)); len(tokens) > 0 {
			r.names = append(r.names, tokens)
		}
	}
	return r
}

func (r *roster) contains(tx *model.CanonicalTransaction) bool {
	if tx.ProviderID != "" && r.ids[tx.ProviderID] {
		return true
	}
	tokens := provider.Tokens(tx.ProviderName)
	if len(tokens) == 0 {
		return false
	}
	for _, n := range r.names {
		if provider.Jaccard(n, tokens) >= r.threshold {
			return true
		}
	}
	return false
}

// matchesCell reports whether any of the cell's transactions is on the roster.
func (r *roster) matchesCell(c *model.CoverageCell) bool {
	for _, tx := range c.Transactions {
		if r.contains(tx) {
			return true
		}
	}
	return false
}
