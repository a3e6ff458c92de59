package input

import (
	"context"

	"browser-observer/internal/domain/entity"
)

type PlanExecutor interface {
	Execute(ctx context.Context, plan entity.Plan) (*entity.ExecutionOutcome, error)
}
