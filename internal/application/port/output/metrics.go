package output

import "browser-observer/internal/domain/entity"

type MetricsPort interface {
	ActionFinished(action entity.ActionType, status entity.StepStatus)
	ActionRetried(action entity.ActionType)
	Resolution(strategy entity.Strategy, ok bool)
	Escalation(found bool)
	StateObserved(retained bool)
	Validation(agent string, passed bool, failures []entity.RuleFailure)
	RunFinished(termination entity.Termination)
}
