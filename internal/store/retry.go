package store

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/sells-group/claimrecon/internal/model"
)

// RetryConfig controls retries of transient store failures with
// exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction adds +/- this fraction of the delay.
	JitterFraction float64
}

// DefaultRetryConfig returns the standard retry policy for run history writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// WithRetry wraps st so reads and writes are retried on transient errors
// such as SQLITE_BUSY or a dropped Postgres connection. Migrate and Close
// are passed through.
func WithRetry(st Store, cfg RetryConfig) Store {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &retryStore{next: st, cfg: cfg}
}

type retryStore struct {
	next Store
	cfg  RetryConfig
}

func (s *retryStore) SaveRun(ctx context.Context, run *model.Run) error {
	_, err := retryVal(ctx, s.cfg, "save_run", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.next.SaveRun(ctx, run)
	})
	return err
}

func (s *retryStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return retryVal(ctx, s.cfg, "get_run", func(ctx context.Context) (*model.Run, error) {
		return s.next.GetRun(ctx, runID)
	})
}

func (s *retryStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	return retryVal(ctx, s.cfg, "list_runs", func(ctx context.Context) ([]model.Run, error) {
		return s.next.ListRuns(ctx, filter)
	})
}

func (s *retryStore) ListIssues(ctx context.Context, filter IssueFilter) ([]IssueRecord, error) {
	return retryVal(ctx, s.cfg, "list_issues", func(ctx context.Context) ([]IssueRecord, error) {
		return s.next.ListIssues(ctx, filter)
	})
}

func (s *retryStore) Migrate(ctx context.Context) error { return s.next.Migrate(ctx) }

func (s *retryStore) Close() error { return s.next.Close() }

func retryVal[T any](ctx context.Context, cfg RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || attempt >= cfg.MaxAttempts-1 {
			break
		}

		zap.L().Warn("retrying store operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// IsTransient reports whether a store error is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"database is locked",
		"sqlite_busy",
		"connection reset by peer",
		"broken pipe",
		"conn closed",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
