package archivist

import (
	"context"
	"fmt"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/usecase/constitution"
)

// UseCase hands the finished state sequence of a run to the sink and checks
// the result against the archivist constitution.
type UseCase struct {
	sink   output.StateSink
	gate   constitution.Enforcer
	logger output.LoggerPort
}

func New(sink output.StateSink, gate constitution.Enforcer, logger output.LoggerPort) *UseCase {
	return &UseCase{
		sink:   sink,
		gate:   gate,
		logger: logger,
	}
}

// Archive writes states in the order given and returns the dataset
// location. A sink error is reported after validation so that the failure
// log still records the missing dataset.
func (uc *UseCase) Archive(ctx context.Context, run output.RunInfo, states []entity.UIState) (string, error) {
	location, sinkErr := uc.sink.Archive(ctx, run, states)
	if sinkErr != nil {
		uc.logger.Error("Failed to archive states", "run_id", run.RunID, "error", sinkErr)
		location = ""
	}

	if uc.gate != nil {
		if _, err := uc.gate.Enforce(ctx, constitution.AgentArchivist, constitution.Subject{
			RunID:   run.RunID,
			Input:   states,
			Output:  location,
			Context: map[string]any{"app": run.App, "task": run.Task},
		}); err != nil {
			return location, err
		}
	}
	if sinkErr != nil {
		return "", fmt.Errorf("failed to archive run %s: %w", run.RunID, sinkErr)
	}

	uc.logger.Info("Run archived", "run_id", run.RunID, "states", len(states), "location", location)
	return location, nil
}
