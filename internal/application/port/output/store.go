package output

import (
	"context"

	"browser-observer/internal/domain/entity"
)

// FailureLog is the durable, append-only record of every validation report.
// Implementations must be safe for concurrent Append.
type FailureLog interface {
	Append(ctx context.Context, report entity.ValidationReport) error
	Query(ctx context.Context, filter entity.FailureFilter) ([]entity.FailureEntry, error)
	Stats(ctx context.Context) (*entity.FailureStats, error)
}

type RunInfo struct {
	RunID string
	Task  string
	App   string
}

// StateSink receives the finished, ordered state sequence of one run.
type StateSink interface {
	Archive(ctx context.Context, run RunInfo, states []entity.UIState) (string, error)
}

// ScreenshotStore persists captured images and returns a reference to them.
type ScreenshotStore interface {
	Save(ctx context.Context, runID string, index int, shot *entity.Screenshot) (string, error)
}

type Planner interface {
	Plan(ctx context.Context, task string) (*entity.Plan, error)
}
