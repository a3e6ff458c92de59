package entity

import (
	"fmt"
	"strings"
)

type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionClick    ActionType = "click"
	ActionTypeText ActionType = "type"
	ActionSubmit   ActionType = "submit"
	ActionWait     ActionType = "wait"
	ActionScroll   ActionType = "scroll"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionTypeText, ActionSubmit, ActionWait, ActionScroll:
		return true
	}
	return false
}

// Target is the semantic description of what a step acts on. Any subset of
// the fields may be set; the resolver decides which one wins.
type Target struct {
	Role   string `json:"role,omitempty" yaml:"role,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
	TestID string `json:"test_id,omitempty" yaml:"test_id,omitempty"`
	CSS    string `json:"css,omitempty" yaml:"css,omitempty"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
}

func (t Target) IsZero() bool {
	return t == Target{}
}

// Selectable reports whether the target carries anything the resolver can use.
func (t Target) Selectable() bool {
	return t.Role != "" || t.Label != "" || t.TestID != "" || t.CSS != ""
}

func (t Target) String() string {
	var parts []string
	if t.Role != "" {
		if t.Name != "" {
			parts = append(parts, fmt.Sprintf("%s[%s]", t.Role, t.Name))
		} else {
			parts = append(parts, t.Role)
		}
	}
	if t.Label != "" {
		parts = append(parts, "label="+t.Label)
	}
	if t.TestID != "" {
		parts = append(parts, "testid="+t.TestID)
	}
	if t.CSS != "" {
		parts = append(parts, "css="+t.CSS)
	}
	if t.URL != "" {
		parts = append(parts, t.URL)
	}
	return strings.Join(parts, " ")
}

type PlanStep struct {
	Action ActionType `json:"action" yaml:"action"`
	Target Target     `json:"target" yaml:"target"`
	Value  string     `json:"value,omitempty" yaml:"value,omitempty"`
}

// Describe renders the step the way it is recorded on the resulting UIState.
func (s PlanStep) Describe() string {
	target := s.Target.String()
	switch {
	case s.Value != "" && target != "":
		return fmt.Sprintf("%s(%s, %q)", s.Action, target, s.Value)
	case s.Value != "":
		return fmt.Sprintf("%s(%q)", s.Action, s.Value)
	default:
		return fmt.Sprintf("%s(%s)", s.Action, target)
	}
}

// Plan is the ordered step list produced by the external planner. The core
// never mutates it.
type Plan struct {
	Task  string     `json:"task" yaml:"task"`
	Steps []PlanStep `json:"steps" yaml:"steps"`
}

// StartURL is the first navigation target of the plan, if any.
func (p Plan) StartURL() string {
	for _, s := range p.Steps {
		if s.Action == ActionNavigate && s.Target.URL != "" {
			return s.Target.URL
		}
	}
	return ""
}

func (p Plan) HasNavigation() bool {
	return p.StartURL() != ""
}
