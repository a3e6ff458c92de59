package constitution

import (
	"context"
	"fmt"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
)

var _ Enforcer = (*Gate)(nil)

// Gate runs constitutions against agent outputs and records every report in
// the failure log.
type Gate struct {
	registry Registry
	log      output.FailureLog
	metrics  output.MetricsPort
	logger   output.LoggerPort
	now      func() time.Time
}

func NewGate(registry Registry, log output.FailureLog, metrics output.MetricsPort, logger output.LoggerPort) *Gate {
	return &Gate{
		registry: registry,
		log:      log,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate evaluates every rule of the agent's constitution in order. A rule
// that panics is recorded as a warning instead of taking the run down.
func (g *Gate) Validate(ctx context.Context, agent string, s Subject) entity.ValidationReport {
	report := entity.ValidationReport{
		RunID:     s.RunID,
		Agent:     agent,
		Passed:    true,
		Failures:  []entity.RuleFailure{},
		Timestamp: g.now().UTC(),
	}

	c, ok := g.registry.Get(agent)
	if !ok {
		g.logger.Warn("No constitution registered", "agent", agent)
		return report
	}

	for _, rule := range c.Rules {
		if f := evaluate(rule, s); f != nil {
			report.Failures = append(report.Failures, *f)
		}
	}
	report.Passed = len(report.Critical()) == 0

	g.metrics.Validation(agent, report.Passed, report.Failures)
	if g.log != nil {
		if err := g.log.Append(ctx, report); err != nil {
			g.logger.Error("Failed to append validation report", "agent", agent, "error", err)
		}
	}

	if len(report.Failures) > 0 {
		g.logger.Info("Constitution validation finished",
			"agent", agent,
			"passed", report.Passed,
			"failures", len(report.Failures),
		)
	}
	return report
}

// Enforce validates and turns critical failures into a *entity.ViolationError.
func (g *Gate) Enforce(ctx context.Context, agent string, s Subject) (entity.ValidationReport, error) {
	report := g.Validate(ctx, agent, s)
	if critical := report.Critical(); len(critical) > 0 {
		return report, &entity.ViolationError{Agent: agent, Failures: critical}
	}
	return report, nil
}

func evaluate(rule Rule, s Subject) (failure *entity.RuleFailure) {
	defer func() {
		if r := recover(); r != nil {
			failure = &entity.RuleFailure{
				Rule:    rule.Name,
				Level:   entity.LevelWarning,
				Reason:  fmt.Sprintf("validator error: %v", r),
				Details: withContext(map[string]any{"panic": true}, s.Context),
			}
		}
	}()

	ok, reason, details := rule.Check(s)
	if ok {
		return nil
	}
	if reason == "" {
		reason = rule.Description
	}
	return &entity.RuleFailure{Rule: rule.Name, Level: rule.Level, Reason: reason, Details: withContext(details, s.Context)}
}

// withContext merges the subject's context under the rule's own details.
// The rule wins on key clashes.
func withContext(details, ctx map[string]any) map[string]any {
	if len(ctx) == 0 {
		return details
	}
	merged := make(map[string]any, len(details)+len(ctx))
	for k, v := range ctx {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return merged
}
