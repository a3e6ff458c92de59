package entity

import "time"

type ValidationLevel string

const (
	LevelCritical ValidationLevel = "critical"
	LevelWarning  ValidationLevel = "warning"
	LevelInfo     ValidationLevel = "info"
)

type RuleFailure struct {
	Rule    string          `json:"rule"`
	Level   ValidationLevel `json:"level"`
	Reason  string          `json:"reason"`
	Details map[string]any  `json:"details,omitempty"`
}

type ValidationReport struct {
	RunID     string        `json:"run_id,omitempty"`
	Agent     string        `json:"agent"`
	Passed    bool          `json:"passed"`
	Failures  []RuleFailure `json:"failures"`
	Timestamp time.Time     `json:"timestamp"`
}

func (r ValidationReport) Critical() []RuleFailure {
	var out []RuleFailure
	for _, f := range r.Failures {
		if f.Level == LevelCritical {
			out = append(out, f)
		}
	}
	return out
}

// FailureEntry is one flattened failure-log row.
type FailureEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id,omitempty"`
	Agent     string          `json:"agent"`
	Rule      string          `json:"rule"`
	Level     ValidationLevel `json:"level"`
	Reason    string          `json:"reason"`
}

type FailureFilter struct {
	Agent string
	Rule  string
	Level ValidationLevel
	Limit int
}

func (f FailureFilter) Match(e FailureEntry) bool {
	if f.Agent != "" && e.Agent != f.Agent {
		return false
	}
	if f.Rule != "" && e.Rule != f.Rule {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	return true
}

type FailureStats struct {
	Reports int                     `json:"reports"`
	Failed  int                     `json:"failed"`
	ByAgent map[string]int          `json:"by_agent"`
	ByRule  map[string]int          `json:"by_rule"`
	ByLevel map[ValidationLevel]int `json:"by_level"`
}
