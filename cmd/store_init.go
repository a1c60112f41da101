package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimrecon/internal/config"
	"github.com/sells-group/claimrecon/internal/detect"
	"github.com/sells-group/claimrecon/internal/reconcile"
	"github.com/sells-group/claimrecon/internal/store"
	"github.com/sells-group/claimrecon/internal/txn"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claimrecon.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore initializes and migrates the configured run history store and
// wraps it with transient-error retries.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	rc := store.DefaultRetryConfig()
	if cfg.Store.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.Store.RetryAttempts
	}
	return store.WithRetry(st, rc), nil
}

// engineOptions maps configuration onto engine options.
func engineOptions(c *config.Config) reconcile.Options {
	return reconcile.Options{
		Match: txn.Tolerance{
			DateDays:           c.Match.DateToleranceDays,
			AmountPct:          c.Match.AmountTolerancePct,
			AmountCents:        c.Match.AmountToleranceCents,
			ProviderSimilarity: c.Match.ProviderSimilarity,
		},
		SettlementCents: c.Coverage.SettlementToleranceCents,
		Detect: detect.Policy{
			MathToleranceCents: c.Detect.MathToleranceCents,
			CoverageGapPct:     c.Detect.CoverageGapPct,
			HighConfidence:     c.Detect.HighMatchConfidence,
			MediumConfidence:   c.Detect.MediumMatchConfidence,
			HighMarginMultiple: c.Detect.HighMarginMultiple,
		},
		DocumentConcurrency: c.Batch.MaxConcurrentDocuments,
		ProfileConcurrency:  c.Batch.MaxConcurrentProfiles,
	}
}
