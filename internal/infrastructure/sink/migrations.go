package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	task TEXT NOT NULL,
	app TEXT NOT NULL DEFAULT '',
	state_count INTEGER NOT NULL,
	archived_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS states (
	run_id TEXT NOT NULL,
	state_id TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	url TEXT NOT NULL,
	description TEXT NOT NULL,
	action TEXT NOT NULL,
	has_modal INTEGER NOT NULL DEFAULT 0,
	significance TEXT NOT NULL,
	significance_confidence REAL NOT NULL DEFAULT 0,
	significance_source TEXT NOT NULL DEFAULT '',
	signature TEXT NOT NULL,
	captured_at TEXT NOT NULL,
	metadata TEXT NOT NULL,
	PRIMARY KEY(run_id, state_id),
	FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_states_run_step ON states(run_id, step_index);

CREATE TABLE IF NOT EXISTS screenshots (
	run_id TEXT NOT NULL,
	state_id TEXT NOT NULL,
	viewport TEXT NOT NULL,
	ref TEXT NOT NULL,
	PRIMARY KEY(run_id, state_id, viewport),
	FOREIGN KEY(run_id, state_id) REFERENCES states(run_id, state_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS detections (
	run_id TEXT NOT NULL,
	state_id TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('modal','toast','form_validity','async_load','structural_diff')),
	present INTEGER NOT NULL,
	score REAL NOT NULL,
	PRIMARY KEY(run_id, state_id, kind),
	FOREIGN KEY(run_id, state_id) REFERENCES states(run_id, state_id) ON DELETE CASCADE
);
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
