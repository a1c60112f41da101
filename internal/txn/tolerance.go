package txn

import "math"

// Tolerance holds the matching policy. The defaults absorb EOB/claim
// processing lag and rounding or adjustment differences.
type Tolerance struct {
	DateDays           int     `yaml:"date_tolerance_days" mapstructure:"date_tolerance_days"`
	AmountPct          float64 `yaml:"amount_tolerance_pct" mapstructure:"amount_tolerance_pct"`
	AmountCents        int64   `yaml:"amount_tolerance_cents" mapstructure:"amount_tolerance_cents"`
	ProviderSimilarity float64 `yaml:"provider_similarity" mapstructure:"provider_similarity"`
}

// DefaultTolerance returns the standard matching policy: 3 days, and the
// larger of 1% or 500 cents.
func DefaultTolerance() Tolerance {
	return Tolerance{
		DateDays:           3,
		AmountPct:          0.01,
		AmountCents:        500,
		ProviderSimilarity: 0.8,
	}
}

// AmountWindow returns the allowed difference between a and b: the larger
// of AmountPct of the bigger amount and AmountCents.
func (t Tolerance) AmountWindow(a, b int64) int64 {
	hi := a
	if b > hi {
		hi = b
	}
	w := int64(math.Round(float64(hi) * t.AmountPct))
	if w < t.AmountCents {
		w = t.AmountCents
	}
	return w
}

// AmountsMatch reports whether a and b are within the amount window.
func (t Tolerance) AmountsMatch(a, b int64) bool {
	return absInt64(a-b) <= t.AmountWindow(a, b)
}

// DateScore maps a day difference inside the window onto [0.5, 1].
func (t Tolerance) DateScore(days int) float64 {
	if days <= 0 || t.DateDays <= 0 {
		return 1
	}
	return clamp01(1 - 0.5*float64(days)/float64(t.DateDays))
}

// AmountScore maps an amount difference inside the window onto [0.5, 1].
func (t Tolerance) AmountScore(a, b int64) float64 {
	diff := absInt64(a - b)
	w := t.AmountWindow(a, b)
	if diff == 0 || w == 0 {
		return 1
	}
	return clamp01(1 - 0.5*float64(diff)/float64(w))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Diff returns the absolute difference between two amounts.
func Diff(a, b int64) int64 {
	return absInt64(a - b)
}
