package entity

import "time"

type Strategy string

const (
	StrategyRole   Strategy = "role"
	StrategyLabel  Strategy = "label"
	StrategyTestID Strategy = "test_id"
	StrategyCSS    Strategy = "css"
	// StrategyVision marks a step committed through coordinate fallback.
	StrategyVision Strategy = "vision"
)

// ResolvedTarget lives for exactly one step. Pages mutate between steps, so
// it must never be cached.
type ResolvedTarget struct {
	Strategy   Strategy
	Handle     string
	Confidence float64
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepResolving  StepStatus = "resolving"
	StepActing     StepStatus = "acting"
	StepVerifying  StepStatus = "verifying"
	StepRetrying   StepStatus = "retrying"
	StepEscalating StepStatus = "escalating"
	StepCommitted  StepStatus = "committed"
	StepFailed     StepStatus = "failed"
)

type Termination string

const (
	TerminationPlanCompleted        Termination = "plan_completed"
	TerminationBudgetExceeded       Termination = "budget_exceeded"
	TerminationAuthRedirectDetected Termination = "auth_redirect_detected"
	TerminationAborted              Termination = "aborted"
)

type StepRecord struct {
	Index         int           `json:"index"`
	Step          PlanStep      `json:"step"`
	Status        StepStatus    `json:"status"`
	Strategy      Strategy      `json:"strategy,omitempty"`
	Confidence    float64       `json:"confidence,omitempty"`
	Attempts      int           `json:"attempts"`
	Escalated     bool          `json:"escalated,omitempty"`
	Error         string        `json:"error,omitempty"`
	StateID       string        `json:"state_id,omitempty"`
	CaptureFailed bool          `json:"capture_failed,omitempty"`
	Duration      time.Duration `json:"duration"`
}

type ExecutionOutcome struct {
	RunID            string       `json:"run_id"`
	Termination      Termination  `json:"termination"`
	Steps            []StepRecord `json:"steps"`
	States           []UIState    `json:"states"`
	CommittedActions int          `json:"committed_actions"`
	ActionBudget     int          `json:"action_budget"`
	FinalURL         string       `json:"final_url"`
	AbortReason      string       `json:"abort_reason,omitempty"`
}

func (o *ExecutionOutcome) FailedSteps() int {
	n := 0
	for _, s := range o.Steps {
		if s.Status == StepFailed {
			n++
		}
	}
	return n
}
