package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimrecon/internal/config"
	"github.com/sells-group/claimrecon/internal/reconcile"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestEngineOptions_FromConfig(t *testing.T) {
	c := &config.Config{
		Batch:    config.BatchConfig{MaxConcurrentProfiles: 2, MaxConcurrentDocuments: 16},
		Match:    config.MatchConfig{DateToleranceDays: 5, AmountTolerancePct: 0.02, AmountToleranceCents: 250, ProviderSimilarity: 0.75},
		Coverage: config.CoverageConfig{SettlementToleranceCents: 50},
		Detect: config.DetectConfig{
			MathToleranceCents:    3,
			CoverageGapPct:        0.2,
			HighMatchConfidence:   0.95,
			MediumMatchConfidence: 0.6,
			HighMarginMultiple:    3,
		},
	}

	opts := engineOptions(c)
	assert.Equal(t, 5, opts.Match.DateDays)
	assert.InDelta(t, 0.02, opts.Match.AmountPct, 1e-9)
	assert.Equal(t, int64(250), opts.Match.AmountCents)
	assert.InDelta(t, 0.75, opts.Match.ProviderSimilarity, 1e-9)
	assert.Equal(t, int64(50), opts.SettlementCents)
	assert.Equal(t, int64(3), opts.Detect.MathToleranceCents)
	assert.InDelta(t, 0.95, opts.Detect.HighConfidence, 1e-9)
	assert.Equal(t, 16, opts.DocumentConcurrency)
	assert.Equal(t, 2, opts.ProfileConcurrency)
}

func TestEngineOptions_DefaultsMatchEngine(t *testing.T) {
	chdir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(chdir))
	defer os.Chdir(origDir) //nolint:errcheck

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, reconcile.DefaultOptions(), engineOptions(c))
}
