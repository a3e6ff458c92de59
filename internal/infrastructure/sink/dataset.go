// Package sink archives observed state sequences: screenshots as files, one
// steps.jsonl per run and a shared sqlite dataset across runs.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ output.StateSink = (*Dataset)(nil)

const (
	DatabaseFile = "dataset.db"
	StepsFile    = "steps.jsonl"
)

// Dataset writes every archived run under root/<run id>/ and indexes it in
// root/dataset.db.
type Dataset struct {
	root string
	db   *sql.DB
}

func Open(ctx context.Context, root string) (*Dataset, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}
	path := filepath.Join(root, DatabaseFile)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Dataset{root: root, db: db}, nil
}

func (d *Dataset) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *Dataset) Root() string {
	return d.root
}

// Archive writes steps.jsonl and replaces any earlier rows of the same run
// in a single transaction. It returns the run directory.
func (d *Dataset) Archive(ctx context.Context, run output.RunInfo, states []entity.UIState) (string, error) {
	if run.RunID == "" {
		return "", errors.New("archive: empty run id")
	}
	dir := filepath.Join(d.root, run.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	if err := writeSteps(filepath.Join(dir, StepsFile), states); err != nil {
		return "", err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin archive tx: %w", err)
	}
	if err := insertRun(ctx, tx, run, states); err != nil {
		tx.Rollback() //nolint:errcheck
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit archive: %w", err)
	}
	return dir, nil
}

func writeSteps(path string, states []entity.UIState) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create steps file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, s := range states {
		if err := enc.Encode(s); err != nil {
			f.Close() //nolint:errcheck
			return fmt.Errorf("encode state %s: %w", s.ID, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close steps file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish steps file: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run output.RunInfo, states []entity.UIState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("clear run %s: %w", run.RunID, err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs(run_id, task, app, state_count, archived_at)
VALUES (?, ?, ?, ?, ?)
`, run.RunID, run.Task, run.App, len(states), ts(time.Now())); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, s := range states {
		meta, err := json.Marshal(s.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", s.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO states(run_id, state_id, step_index, url, description, action, has_modal, significance,
	significance_confidence, significance_source, signature, captured_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, run.RunID, s.ID, s.Metadata.StepIndex, s.URL, s.Description, s.Action, boolToInt(s.HasModal),
			string(s.Metadata.Significance), s.Metadata.SignificanceConfidence, s.Metadata.SignificanceSource,
			s.Signature.Hash, ts(s.CapturedAt), string(meta)); err != nil {
			return fmt.Errorf("insert state %s: %w", s.ID, err)
		}

		viewports := make([]string, 0, len(s.Screenshots))
		for v := range s.Screenshots {
			viewports = append(viewports, v)
		}
		sort.Strings(viewports)
		for _, v := range viewports {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO screenshots(run_id, state_id, viewport, ref) VALUES (?, ?, ?, ?)
`, run.RunID, s.ID, v, s.Screenshots[v]); err != nil {
				return fmt.Errorf("insert screenshot %s/%s: %w", s.ID, v, err)
			}
		}

		for _, det := range s.Metadata.Detections {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO detections(run_id, state_id, kind, present, score) VALUES (?, ?, ?, ?, ?)
`, run.RunID, s.ID, string(det.Kind), boolToInt(det.Present), det.Score); err != nil {
				return fmt.Errorf("insert detection %s/%s: %w", s.ID, det.Kind, err)
			}
		}
	}
	return nil
}

type StateRow struct {
	StateID      string
	StepIndex    int
	URL          string
	Description  string
	Action       string
	HasModal     bool
	Significance entity.Significance
	Signature    string
	Screenshots  map[string]string
}

// States lists the archived states of one run in step order.
func (d *Dataset) States(ctx context.Context, runID string) ([]StateRow, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT state_id, step_index, url, description, action, has_modal, significance, signature
FROM states WHERE run_id = ? ORDER BY step_index, state_id
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []StateRow
	index := make(map[string]int)
	for rows.Next() {
		var (
			r        StateRow
			hasModal int
			sig      string
		)
		if err := rows.Scan(&r.StateID, &r.StepIndex, &r.URL, &r.Description, &r.Action, &hasModal, &sig, &r.Signature); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		r.HasModal = hasModal != 0
		r.Significance = entity.Significance(sig)
		r.Screenshots = make(map[string]string)
		index[r.StateID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}

	shots, err := d.db.QueryContext(ctx, `SELECT state_id, viewport, ref FROM screenshots WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query screenshots: %w", err)
	}
	defer shots.Close() //nolint:errcheck
	for shots.Next() {
		var id, viewport, ref string
		if err := shots.Scan(&id, &viewport, &ref); err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].Screenshots[viewport] = ref
		}
	}
	return out, shots.Err()
}

// DetectionCounts reports how often each detector fired across all runs.
func (d *Dataset) DetectionCounts(ctx context.Context) (map[entity.DetectionKind]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM detections WHERE present = 1 GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[entity.DetectionKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan detection count: %w", err)
		}
		out[entity.DetectionKind(kind)] = n
	}
	return out, rows.Err()
}

func (d *Dataset) CountRows(ctx context.Context, table string) (int64, error) {
	switch table {
	case "runs", "states", "screenshots", "detections":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
