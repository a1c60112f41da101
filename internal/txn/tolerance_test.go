package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountWindow(t *testing.T) {
	tol := DefaultTolerance()

	assert.Equal(t, int64(500), tol.AmountWindow(10000, 10100), "flat floor for small amounts")
	assert.Equal(t, int64(1450), tol.AmountWindow(145000, 140000), "1% of the larger amount")
	assert.True(t, tol.AmountsMatch(145000, 146450))
	assert.False(t, tol.AmountsMatch(145000, 146500))
}

func TestScores(t *testing.T) {
	tol := DefaultTolerance()

	assert.InDelta(t, 1.0, tol.DateScore(0), 1e-9)
	assert.InDelta(t, 0.5, tol.DateScore(3), 1e-9)
	assert.InDelta(t, 1.0, tol.AmountScore(500, 500), 1e-9)
	assert.InDelta(t, 0.5, tol.AmountScore(10000, 10500), 1e-9)

	strict := Tolerance{}
	assert.InDelta(t, 1.0, strict.DateScore(0), 1e-9)
	assert.InDelta(t, 1.0, strict.AmountScore(7, 7), 1e-9)
}

func TestDiff(t *testing.T) {
	assert.Equal(t, int64(5), Diff(10, 5))
	assert.Equal(t, int64(5), Diff(5, 10))
}
