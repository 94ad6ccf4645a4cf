// Package history keeps a SQLite journal of sync runs. The journal is
// diagnostics only: a write failure is logged and never fails the sync that
// produced the entry.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
	"github.com/listenupapp/listenup-bookmarks/internal/id"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	pushed      INTEGER NOT NULL,
	fetched     INTEGER NOT NULL,
	dropped     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_account ON sync_runs(account_id, started_at);
`

// Run is one journaled sync run for an account.
type Run struct {
	ID         string
	AccountID  domain.AccountID
	StartedAt  time.Time
	FinishedAt time.Time
	// Pushed is the number of local-only bookmarks uploaded.
	Pushed int
	// Fetched is the number of remote annotations retrieved.
	Fetched int
	// Dropped is the number of remote records skipped as unreadable.
	Dropped int
	// Error is empty for successful runs.
	Error string
}

// Journal records sync runs in SQLite.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (or opens) the journal database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "open sync journal")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, errors.CodeStorage, "exec pragma %q", pragma)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeStorage, "exec journal schema")
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordRun journals one completed sync run. Failures are logged, never
// returned: the journal must not make a successful sync look failed.
func (j *Journal) RecordRun(ctx context.Context, run Run) {
	if run.ID == "" {
		run.ID = id.MustGenerate("run")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, account_id, started_at, finished_at, pushed, fetched, dropped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.AccountID),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Pushed,
		run.Fetched,
		run.Dropped,
		run.Error,
	)
	if err != nil {
		j.logger.Warn("failed to journal sync run",
			"account_id", run.AccountID,
			"error", err,
		)
	}
}

// RecentRuns returns the most recent runs for an account, newest first.
func (j *Journal) RecentRuns(ctx context.Context, account domain.AccountID, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, account_id, started_at, finished_at, pushed, fetched, dropped, error
		FROM sync_runs
		WHERE account_id = ?
		ORDER BY started_at DESC
		LIMIT ?`,
		string(account), limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "query sync runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			accountID  string
			startedAt  string
			finishedAt string
		)
		err := rows.Scan(&run.ID, &accountID, &startedAt, &finishedAt,
			&run.Pushed, &run.Fetched, &run.Dropped, &run.Error)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "scan sync run")
		}
		run.AccountID = domain.AccountID(accountID)
		run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeStorage, "malformed started_at %q", startedAt)
		}
		run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeStorage, "malformed finished_at %q", finishedAt)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "iterate sync runs")
	}
	return runs, nil
}
