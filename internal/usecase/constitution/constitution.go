package constitution

import (
	"context"

	"browser-observer/internal/domain/entity"
)

const (
	AgentPlanner   = "planner"
	AgentNavigator = "navigator"
	AgentObserver  = "observer"
	AgentArchivist = "archivist"
)

// Subject is what a rule inspects: the agent's input, the output it
// produced and the run it belongs to. Context carries whatever else the
// caller knows at that point (step index, viewport, budget).
type Subject struct {
	RunID   string
	Input   any
	Output  any
	Context map[string]any
}

// CheckFunc returns ok=false with a reason when the rule is violated, plus
// optional details that end up in the failure record. It must not mutate
// the subject.
type CheckFunc func(s Subject) (ok bool, reason string, details map[string]any)

type Rule struct {
	Name        string
	Description string
	Level       entity.ValidationLevel
	Check       CheckFunc
}

type Constitution struct {
	Agent string
	Rules []Rule
}

// Registry looks up the constitution for an agent.
type Registry interface {
	Get(agent string) (Constitution, bool)
}

// Defaults returns the built-in constitutions for every agent of a run.
func Defaults() []Constitution {
	return []Constitution{
		Planner(),
		Navigator(),
		Observer(),
		Archivist(),
	}
}

// Enforcer is the part of Gate the navigator and observer depend on.
type Enforcer interface {
	Enforce(ctx context.Context, agent string, s Subject) (entity.ValidationReport, error)
}
