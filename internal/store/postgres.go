package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/claimrecon/internal/db"
	"github.com/sells-group/claimrecon/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	profile_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_issues (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	issue_id          TEXT NOT NULL,
	profile_id        TEXT NOT NULL,
	issue_type        TEXT NOT NULL,
	confidence        TEXT NOT NULL,
	max_savings_cents BIGINT NOT NULL CHECK (max_savings_cents >= 0),
	issue             JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, issue_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_profile ON runs(profile_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_issues_profile ON run_issues(profile_id, issue_type);
`

var issueColumns = []string{
	"run_id", "issue_id", "profile_id", "issue_type", "confidence", "max_savings_cents", "issue", "created_at",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	prepareRun(run)

	var resultJSON []byte
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
		resultJSON = b
	}

	rows := make([][]any, 0, len(issuesOf(run)))
	for _, is := range issuesOf(run) {
		body, err := json.Marshal(is)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal issue")
		}
		rows = append(rows, []any{
			run.ID, is.IssueID, run.ProfileID, string(is.IssueType), string(is.Confidence),
			is.MaxSavingsCents, body, run.CreatedAt,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, profile_id, status, result, error, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.ProfileID, string(run.Status), resultJSON, run.Error, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "run_issues", issueColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy issues for run %s", run.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, profile_id, status, result, error, created_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, profile_id, status, result, error, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.ProfileID != "" {
		args = append(args, filter.ProfileID)
		query += fmt.Sprintf(` AND profile_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter IssueFilter) ([]IssueRecord, error) {
	query := `SELECT run_id, profile_id, issue, created_at FROM run_issues WHERE 1=1`
	var args []any

	if filter.ProfileID != "" {
		args = append(args, filter.ProfileID)
		query += fmt.Sprintf(` AND profile_id = $%d`, len(args))
	}
	if filter.IssueType != "" {
		args = append(args, string(filter.IssueType))
		query += fmt.Sprintf(` AND issue_type = $%d`, len(args))
	}
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		query += fmt.Sprintf(` AND run_id = $%d`, len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, max_savings_cents DESC, issue_id LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list issues")
	}
	defer rows.Close()

	var out []IssueRecord
	for rows.Next() {
		var rec IssueRecord
		var body []byte
		if err := rows.Scan(&rec.RunID, &rec.ProfileID, &body, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan issue")
		}
		if err := json.Unmarshal(body, &rec.Issue); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal issue")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list issues iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var resultJSON []byte

	err := row.Scan(&r.ID, &r.ProfileID, &status, &resultJSON, &r.Error, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan run")
	}
	r.Status = model.RunStatus(status)

	if len(resultJSON) > 0 {
		r.Result = &model.Result{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &r, nil
}
