package input

import (
	"context"

	"browser-observer/internal/domain/entity"
)

// StateObserver captures the page after an action. A nil state with a nil
// error means the observation duplicated a recent one and was not retained.
type StateObserver interface {
	Observe(ctx context.Context, actionDescription string) (*entity.UIState, error)
	States() []entity.UIState
}
