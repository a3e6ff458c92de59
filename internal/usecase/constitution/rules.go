package constitution

import (
	"fmt"
	"strings"

	"browser-observer/internal/domain/entity"
)

var knownViewports = map[string]bool{
	entity.ViewportDesktop.Name: true,
	entity.ViewportTablet.Name:  true,
	entity.ViewportMobile.Name:  true,
	entity.ViewportFocus:        true,
}

// Planner validates a *entity.Plan produced for a task.
func Planner() Constitution {
	return Constitution{
		Agent: AgentPlanner,
		Rules: []Rule{
			{
				Name:        "plan_structure",
				Description: "Planner must return a plan",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					if p, ok := s.Output.(*entity.Plan); !ok || p == nil {
						return false, fmt.Sprintf("expected *entity.Plan, got %T", s.Output), nil
					}
					return true, "", nil
				},
			},
			{
				Name:        "plan_non_empty",
				Description: "Plan must contain at least one step",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					p, _ := s.Output.(*entity.Plan)
					if p == nil || len(p.Steps) == 0 {
						return false, "plan has no steps", nil
					}
					return true, "", nil
				},
			},
			{
				Name:        "plan_step_validity",
				Description: "Every step must be executable",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					p, _ := s.Output.(*entity.Plan)
					if p == nil {
						return true, "", nil
					}
					var bad []string
					var steps []int
					for i, step := range p.Steps {
						if msg := stepProblem(step); msg != "" {
							bad = append(bad, fmt.Sprintf("step %d: %s", i, msg))
							steps = append(steps, i)
						}
					}
					if len(bad) > 0 {
						return false, strings.Join(bad, "; "), map[string]any{"steps": steps}
					}
					return true, "", nil
				},
			},
		},
	}
}

func stepProblem(step entity.PlanStep) string {
	if !step.Action.Valid() {
		return fmt.Sprintf("unknown action %q", step.Action)
	}
	switch step.Action {
	case entity.ActionNavigate:
		if step.Target.URL == "" {
			return "navigate without url"
		}
	case entity.ActionClick, entity.ActionSubmit:
		if !step.Target.Selectable() {
			return "no selector descriptor"
		}
	case entity.ActionTypeText:
		if !step.Target.Selectable() {
			return "no selector descriptor"
		}
		if step.Value == "" {
			return "type without value"
		}
	}
	return ""
}

// Navigator validates the *entity.ExecutionOutcome of an entity.Plan.
func Navigator() Constitution {
	return Constitution{
		Agent: AgentNavigator,
		Rules: []Rule{
			{
				Name:        "navigation_success",
				Description: "A plan that navigates must end on a real page",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					plan, _ := s.Input.(entity.Plan)
					out, _ := s.Output.(*entity.ExecutionOutcome)
					if out == nil {
						return false, "no execution outcome", nil
					}
					if !plan.HasNavigation() {
						return true, "", nil
					}
					if out.FinalURL == "" || out.FinalURL == "about:blank" {
						return false, fmt.Sprintf("final url %q", out.FinalURL), map[string]any{"final_url": out.FinalURL}
					}
					return true, "", nil
				},
			},
			{
				Name:        "action_budget",
				Description: "Run should finish within its action budget",
				Level:       entity.LevelWarning,
				Check: func(s Subject) (bool, string, map[string]any) {
					out, _ := s.Output.(*entity.ExecutionOutcome)
					if out == nil {
						return true, "", nil
					}
					if out.Termination == entity.TerminationBudgetExceeded || out.CommittedActions > out.ActionBudget {
						return false, fmt.Sprintf("%d of %d actions used", out.CommittedActions, out.ActionBudget),
							map[string]any{"committed": out.CommittedActions, "budget": out.ActionBudget}
					}
					return true, "", nil
				},
			},
			{
				Name:        "no_auth_redirects",
				Description: "Run should not be bounced to a login page",
				Level:       entity.LevelWarning,
				Check: func(s Subject) (bool, string, map[string]any) {
					out, _ := s.Output.(*entity.ExecutionOutcome)
					if out != nil && out.Termination == entity.TerminationAuthRedirectDetected {
						return false, "redirected to " + out.FinalURL, map[string]any{"final_url": out.FinalURL}
					}
					return true, "", nil
				},
			},
			{
				Name:        "step_failures",
				Description: "Steps that could not be executed",
				Level:       entity.LevelInfo,
				Check: func(s Subject) (bool, string, map[string]any) {
					out, _ := s.Output.(*entity.ExecutionOutcome)
					if out == nil {
						return true, "", nil
					}
					if n := out.FailedSteps(); n > 0 {
						var failed []int
						for _, st := range out.Steps {
							if st.Status == entity.StepFailed {
								failed = append(failed, st.Index)
							}
						}
						return false, fmt.Sprintf("%d of %d steps failed", n, len(out.Steps)), map[string]any{"steps": failed}
					}
					return true, "", nil
				},
			},
		},
	}
}

// Observer validates one retained *entity.UIState.
func Observer() Constitution {
	return Constitution{
		Agent: AgentObserver,
		Rules: []Rule{
			{
				Name:        "state_captured",
				Description: "State must carry a signature and a screenshot",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					st, _ := s.Output.(*entity.UIState)
					switch {
					case st == nil:
						return false, "no state", nil
					case st.Signature.Empty():
						return false, "missing signature", nil
					case len(st.Screenshots) == 0:
						return false, "no screenshots", nil
					}
					return true, "", nil
				},
			},
			{
				Name:        "screenshot_refs",
				Description: "Screenshot references must be stored under known viewports",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					st, _ := s.Output.(*entity.UIState)
					if st == nil {
						return true, "", nil
					}
					for vp, ref := range st.Screenshots {
						if !knownViewports[vp] {
							return false, "unknown viewport " + vp, map[string]any{"viewport": vp}
						}
						if ref == "" {
							return false, "empty reference for " + vp, map[string]any{"viewport": vp}
						}
					}
					return true, "", nil
				},
			},
			{
				Name:        "viewport_coverage",
				Description: "Every configured viewport should be captured",
				Level:       entity.LevelWarning,
				Check: func(s Subject) (bool, string, map[string]any) {
					st, _ := s.Output.(*entity.UIState)
					wanted, _ := s.Context["viewports"].([]string)
					if st == nil {
						return true, "", nil
					}
					var missing []string
					for _, vp := range wanted {
						if st.Screenshots[vp] == "" {
							missing = append(missing, vp)
						}
					}
					if len(missing) > 0 {
						return false, "missing " + strings.Join(missing, ", "), map[string]any{"missing": missing}
					}
					return true, "", nil
				},
			},
			{
				Name:        "state_description",
				Description: "State should be described",
				Level:       entity.LevelWarning,
				Check: func(s Subject) (bool, string, map[string]any) {
					st, _ := s.Output.(*entity.UIState)
					if st != nil && strings.TrimSpace(st.Description) == "" {
						return false, "empty description", nil
					}
					return true, "", nil
				},
			},
		},
	}
}

// Archivist validates an archived state sequence ([]entity.UIState) and the
// location it was written to (string).
func Archivist() Constitution {
	return Constitution{
		Agent: AgentArchivist,
		Rules: []Rule{
			{
				Name:        "minimum_states",
				Description: "A run must retain at least one state",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					states, _ := s.Input.([]entity.UIState)
					if len(states) == 0 {
						return false, "no states captured", nil
					}
					return true, "", nil
				},
			},
			{
				Name:        "state_order",
				Description: "States must be archived in step order",
				Level:       entity.LevelCritical,
				Check: func(s Subject) (bool, string, map[string]any) {
					states, _ := s.Input.([]entity.UIState)
					for i := 1; i < len(states); i++ {
						if states[i].Metadata.StepIndex < states[i-1].Metadata.StepIndex {
							return false, fmt.Sprintf("state %s precedes %s", states[i].ID, states[i-1].ID),
								map[string]any{"state": states[i].ID, "previous": states[i-1].ID}
						}
					}
					return true, "", nil
				},
			},
			{
				Name:        "dataset_written",
				Description: "Archive location should be reported",
				Level:       entity.LevelWarning,
				Check: func(s Subject) (bool, string, map[string]any) {
					if loc, _ := s.Output.(string); loc == "" {
						return false, "no archive location", nil
					}
					return true, "", nil
				},
			},
		},
	}
}
