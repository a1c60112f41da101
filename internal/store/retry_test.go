package store

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/claimrecon/internal/model"
)

// flakyStore fails the first n calls of every method with err.
type flakyStore struct {
	Store
	err   error
	fails int
	calls int
}

func (f *flakyStore) attempt() error {
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	return nil
}

func (f *flakyStore) SaveRun(_ context.Context, run *model.Run) error {
	if err := f.attempt(); err != nil {
		return err
	}
	run.ID = "saved"
	return nil
}

func (f *flakyStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return &model.Run{ID: runID}, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func TestWithRetry_RecoversFromBusy(t *testing.T) {
	f := &flakyStore{err: eris.Wrap(errors.New("database is locked (5) (SQLITE_BUSY)"), "sqlite: insert run"), fails: 2}
	st := WithRetry(f, fastRetry(3))

	run := &model.Run{}
	require.NoError(t, st.SaveRun(context.Background(), run))
	assert.Equal(t, "saved", run.ID)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	f := &flakyStore{err: syscall.ECONNRESET, fails: 10}
	st := WithRetry(f, fastRetry(3))

	_, err := st.GetRun(context.Background(), "run-1")
	require.Error(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_NotFoundIsNotRetried(t *testing.T) {
	f := &flakyStore{err: eris.Wrap(ErrNotFound, "sqlite: get run x"), fails: 10}
	st := WithRetry(f, fastRetry(5))

	_, err := st.GetRun(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 1, f.calls)
}

func TestWithRetry_StopsOnCanceledContext(t *testing.T) {
	f := &flakyStore{err: errors.New("broken pipe"), fails: 10}
	st := WithRetry(f, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := st.GetRun(ctx, "run-1")
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestWithRetry_PassesThroughSQLite(t *testing.T) {
	st := WithRetry(newTestSQLiteStore(t), DefaultRetryConfig())
	ctx := context.Background()

	run := &model.Run{Result: testResult("fam-01")}
	require.NoError(t, st.SaveRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "fam-01", got.ProfileID)

	recs, err := st.ListIssues(ctx, IssueFilter{RunID: run.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"sqlite busy", errors.New("database is locked"), true},
		{"conn reset", eris.Wrap(syscall.ECONNRESET, "postgres: begin"), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"constraint", errors.New("UNIQUE constraint failed: runs.id"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
