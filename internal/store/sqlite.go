package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/claimrecon/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	profile_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_issues (
	run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	issue_id          TEXT NOT NULL,
	profile_id        TEXT NOT NULL,
	issue_type        TEXT NOT NULL,
	confidence        TEXT NOT NULL,
	max_savings_cents INTEGER NOT NULL,
	issue             TEXT NOT NULL,
	created_at        DATETIME NOT NULL,
	PRIMARY KEY (run_id, issue_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_profile ON runs(profile_id, created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_issues_profile ON run_issues(profile_id, issue_type);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	prepareRun(run)

	var resultJSON sql.NullString
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, profile_id, status, result, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProfileID, string(run.Status), resultJSON, run.Error, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	issues := issuesOf(run)
	if len(issues) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_issues (run_id, issue_id, profile_id, issue_type, confidence, max_savings_cents, issue, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare issue insert")
		}
		defer stmt.Close() //nolint:errcheck

		for _, is := range issues {
			body, err := json.Marshal(is)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal issue")
			}
			if _, err := stmt.ExecContext(ctx, run.ID, is.IssueID, run.ProfileID, string(is.IssueType),
				string(is.Confidence), is.MaxSavingsCents, string(body), run.CreatedAt); err != nil {
				return eris.Wrapf(err, "sqlite: insert issue %s", is.IssueID)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile_id, status, result, error, created_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, ErrNotFound) {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, profile_id, status, result, error, created_at FROM runs WHERE 1=1`
	var args []any

	if filter.ProfileID != "" {
		query += ` AND profile_id = ?`
		args = append(args, filter.ProfileID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueFilter) ([]IssueRecord, error) {
	query := `SELECT run_id, profile_id, issue, created_at FROM run_issues WHERE 1=1`
	var args []any

	if filter.ProfileID != "" {
		query += ` AND profile_id = ?`
		args = append(args, filter.ProfileID)
	}
	if filter.IssueType != "" {
		query += ` AND issue_type = ?`
		args = append(args, string(filter.IssueType))
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY created_at DESC, max_savings_cents DESC, issue_id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list issues")
	}
	defer rows.Close() //nolint:errcheck

	var out []IssueRecord
	for rows.Next() {
		var rec IssueRecord
		var body string
		if err := rows.Scan(&rec.RunID, &rec.ProfileID, &body, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan issue")
		}
		if err := json.Unmarshal([]byte(body), &rec.Issue); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal issue")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list issues iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.ProfileID, &r.Status, &resultJSON, &r.Error, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.Result{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
