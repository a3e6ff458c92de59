package failurelog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ output.FailureLog = (*JSONL)(nil)

type failureRecord struct {
	Rule   string                 `json:"rule"`
	Level  entity.ValidationLevel `json:"level"`
	Reason string                 `json:"reason"`
}

type record struct {
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	Agent     string          `json:"agent"`
	Passed    bool            `json:"passed"`
	Failures  []failureRecord `json:"failures"`
}

// JSONL appends one line per validation report. Every line is written with
// a single Write call under the mutex, so runs sharing one JSONL never
// interleave partial records.
type JSONL struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func Open(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create failure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	return &JSONL{path: path, file: f}, nil
}

func (l *JSONL) Path() string {
	return l.path
}

func (l *JSONL) Append(_ context.Context, report entity.ValidationReport) error {
	rec := record{
		Timestamp: report.Timestamp,
		RunID:     report.RunID,
		Agent:     report.Agent,
		Passed:    report.Passed,
		Failures:  make([]failureRecord, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		rec.Failures = append(rec.Failures, failureRecord{Rule: f.Rule, Level: f.Level, Reason: f.Reason})
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode validation report: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("failure log is closed")
	}
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("failed to append validation report: %w", err)
	}
	return nil
}

// Query returns flattened failures matching the filter, oldest first. A
// positive Limit keeps only the most recent entries.
func (l *JSONL) Query(ctx context.Context, filter entity.FailureFilter) ([]entity.FailureEntry, error) {
	var out []entity.FailureEntry
	err := l.scan(ctx, func(rec record) {
		for _, f := range rec.Failures {
			e := entity.FailureEntry{
				Timestamp: rec.Timestamp,
				RunID:     rec.RunID,
				Agent:     rec.Agent,
				Rule:      f.Rule,
				Level:     f.Level,
				Reason:    f.Reason,
			}
			if filter.Match(e) {
				out = append(out, e)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (l *JSONL) Stats(ctx context.Context) (*entity.FailureStats, error) {
	stats := &entity.FailureStats{
		ByAgent: make(map[string]int),
		ByRule:  make(map[string]int),
		ByLevel: make(map[entity.ValidationLevel]int),
	}
	err := l.scan(ctx, func(rec record) {
		stats.Reports++
		if !rec.Passed {
			stats.Failed++
		}
		for _, f := range rec.Failures {
			stats.ByAgent[rec.Agent]++
			stats.ByRule[f.Rule]++
			stats.ByLevel[f.Level]++
		}
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (l *JSONL) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// scan reads the log from a separate handle. Lines that fail to decode,
// such as a record truncated by a crash, are skipped.
func (l *JSONL) scan(ctx context.Context, fn func(record)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read failure log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var rec record
			if json.Unmarshal(line, &rec) == nil {
				fn(rec)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read failure log: %w", err)
		}
	}
}
