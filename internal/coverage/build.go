// Package coverage aggregates canonical transactions into coverage cells
// and derives each cell's reconciliation state.
package coverage

import (
	"sort"

	"github.com/sells-group/claimrecon/internal/model"
	"github.com/sells-group/claimrecon/internal/txn"
)

// Options configures matrix derivation.
type Options struct {
	Match txn.Tolerance
	// SettlementCents is the slack allowed when comparing paid plus patient
	// responsibility against the allowed (or billed) amount.
	SettlementCents int64 `yaml:"settlement_tolerance_cents" mapstructure:"settlement_tolerance_cents"`
}

// DefaultOptions returns the standard coverage policy.
func DefaultOptions() Options {
	return Options{Match: txn.DefaultTolerance(), SettlementCents: 100}
}

// Builder derives coverage matrices. Build is pure: the same transactions
// always produce the same matrix.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

type groupKey struct {
	profile  string
	provider string
	code     string
}

// Build groups transactions into cells keyed by profile, provider, date
// bucket, and code. Within a provider/code group, transactions are ordered
// by service date and a new bucket starts when a date falls more than the
// date tolerance after the current bucket's first date.
func (b *Builder) Build(profileID string, txns []*model.CanonicalTransaction) *model.CoverageMatrix {
	groups := make(map[groupKey][]*model.CanonicalTransaction)
	for _, tx := range txns {
		k := groupKey{profile: tx.ProfileID, provider: tx.ProviderKey, code: tx.Code}
		groups[k] = append(groups[k], tx)
	}

	var cells []*model.CoverageCell
	for k, members := range groups {
		sorted := make([]*model.CanonicalTransaction, len(members))
		copy(sorted, members)
		sort.Slice(sorted, func(i, j int) bool {
			if !sorted[i].ServiceDate.Equal(sorted[j].ServiceDate) {
				return sorted[i].ServiceDate.Before(sorted[j].ServiceDate)
			}
			return sorted[i].TransactionID < sorted[j].TransactionID
		})

		var current *model.CoverageCell
		for _, tx := range sorted {
			if current == nil || current.Key.DateBucket.AbsDays(tx.ServiceDate) > b.opts.Match.DateDays {
				current = &model.CoverageCell{Key: model.CellKey{
					ProfileID:   k.profile,
					ProviderKey: k.provider,
					DateBucket:  tx.ServiceDate,
					Code:        k.code,
				}}
				cells = append(cells, current)
			}
			current.Transactions = append(current.Transactions, tx)
		}
	}

	for _, c := range cells {
		sort.Slice(c.Transactions, func(i, j int) bool {
			return c.Transactions[i].TransactionID < c.Transactions[j].TransactionID
		})
		c.TransactionIDs = make([]string, len(c.Transactions))
		for i, tx := range c.Transactions {
			c.TransactionIDs[i] = tx.TransactionID
		}
		b.derive(c)
	}

	return model.NewCoverageMatrix(profileID, cells)
}
