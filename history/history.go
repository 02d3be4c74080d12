// Package history keeps a local log of finished synchronization runs in a
// SQLite database, so operators can audit when and how the tracked IP
// changed.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB drivers.
	_ "github.com/glebarez/go-sqlite"

	aerrors "github.com/botsarefuture/hetzner-firewall/app/errors"
	"github.com/botsarefuture/hetzner-firewall/firewall"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	previous_ip TEXT NOT NULL DEFAULT '',
	current_ip  TEXT NOT NULL DEFAULT '',
	changed     INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);`

// Log records finished runs in a SQLite database.
type Log struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ firewall.Recorder = (*Log)(nil)

// Open creates and configures the run history database, creating the schema
// if it doesn't exist yet.
func Open(path string, logger *slog.Logger) (*Log, error) {
	sqliteDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindIO, "failed opening history database", err, "path", path)
	}

	if _, err = sqliteDB.Exec(schema); err != nil {
		sqliteDB.Close() //nolint:errcheck,gosec // Best effort on the error path.
		return nil, aerrors.Wrap(aerrors.KindIO, "failed creating history schema", err, "path", path)
	}

	return &Log{
		db:     sqliteDB,
		path:   path,
		logger: logger.With("component", "history", "path", path),
	}, nil
}

// Record inserts one run record. Implements the firewall.Recorder interface.
func (l *Log) Record(ctx context.Context, rec firewall.RunRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, outcome, previous_ip, current_ip, changed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Outcome),
		rec.PreviousIP,
		rec.CurrentIP,
		rec.Changed,
		rec.Error,
	)
	if err != nil {
		return aerrors.Wrap(aerrors.KindIO, "failed recording run", err, "path", l.path)
	}

	l.logger.Debug("recorded run", "run_id", rec.RunID, "outcome", rec.Outcome)

	return nil
}

// List returns the most recent runs, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]firewall.RunRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, outcome, previous_ip, current_ip, changed, error
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindIO, "failed listing runs", err, "path", l.path)
	}
	defer rows.Close() //nolint:errcheck // Rows are fully consumed below.

	var recs []firewall.RunRecord
	for rows.Next() {
		var (
			rec               firewall.RunRecord
			started, finished string
			outcome           string
		)
		err = rows.Scan(&rec.RunID, &started, &finished, &outcome,
			&rec.PreviousIP, &rec.CurrentIP, &rec.Changed, &rec.Error)
		if err != nil {
			return nil, aerrors.Wrap(aerrors.KindIO, "failed scanning run row", err, "path", l.path)
		}
		rec.Outcome = firewall.Outcome(outcome)
		if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, aerrors.Wrap(aerrors.KindIO, "invalid started_at timestamp", err, "path", l.path)
		}
		if rec.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, aerrors.Wrap(aerrors.KindIO, "invalid finished_at timestamp", err, "path", l.path)
		}
		recs = append(recs, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, aerrors.Wrap(aerrors.KindIO, "failed iterating run rows", err, "path", l.path)
	}

	return recs, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if err := l.db.Close(); err != nil {
		return aerrors.Wrap(aerrors.KindIO, "failed closing history database", err, "path", l.path)
	}
	return nil
}
