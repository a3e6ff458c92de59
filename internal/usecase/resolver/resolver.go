package resolver

import (
	"context"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
)

// Confidence reported per tier. Semantic strategies survive redesigns, raw
// CSS is the brittle last resort.
var tierConfidence = map[entity.Strategy]float64{
	entity.StrategyRole:   0.95,
	entity.StrategyLabel:  0.85,
	entity.StrategyTestID: 0.80,
	entity.StrategyCSS:    0.60,
}

func Confidence(s entity.Strategy) float64 {
	return tierConfidence[s]
}

type Resolver struct {
	browser output.BrowserPort
	logger  output.LoggerPort
	metrics output.MetricsPort
}

func New(browser output.BrowserPort, logger output.LoggerPort, metrics output.MetricsPort) *Resolver {
	return &Resolver{
		browser: browser,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve walks role, label, test id and css tiers in that order. A tier
// succeeds only with exactly one visible, enabled candidate; anything else
// falls through to the next tier.
func (r *Resolver) Resolve(ctx context.Context, target entity.Target) (*entity.ResolvedTarget, error) {
	queries := Queries(target)
	tried := make([]entity.Strategy, 0, len(queries))
	ambiguous := false

	for _, q := range queries {
		tried = append(tried, q.Strategy)

		candidates, err := r.browser.FindCandidates(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Debug("Candidate lookup failed", "strategy", q.Strategy, "error", err)
			r.metrics.Resolution(q.Strategy, false)
			continue
		}

		actionable := make([]entity.Candidate, 0, len(candidates))
		for _, c := range candidates {
			if c.Actionable() {
				actionable = append(actionable, c)
			}
		}

		switch len(actionable) {
		case 1:
			r.metrics.Resolution(q.Strategy, true)
			r.logger.Debug("Target resolved", "strategy", q.Strategy, "target", target.String())
			return &entity.ResolvedTarget{
				Strategy:   q.Strategy,
				Handle:     actionable[0].Handle,
				Confidence: tierConfidence[q.Strategy],
			}, nil
		case 0:
			r.logger.Debug("No actionable candidate", "strategy", q.Strategy, "found", len(candidates))
		default:
			ambiguous = true
			r.logger.Debug("Ambiguous candidates", "strategy", q.Strategy, "count", len(actionable))
		}
		r.metrics.Resolution(q.Strategy, false)
	}

	reason := entity.ReasonNotFound
	if ambiguous {
		reason = entity.ReasonAmbiguous
	}
	return nil, &entity.ResolutionFailure{
		Reason: reason,
		Tried:  tried,
		Target: target,
	}
}

// Queries lists the tier queries a target supports, in priority order.
func Queries(target entity.Target) []entity.Query {
	var out []entity.Query
	if target.Role != "" {
		out = append(out, entity.Query{
			Strategy: entity.StrategyRole,
			Role:     Normalize(target.Role),
			Name:     Normalize(target.Name),
		})
	}
	if target.Label != "" {
		out = append(out, entity.Query{Strategy: entity.StrategyLabel, Value: Normalize(target.Label)})
	}
	if target.TestID != "" {
		out = append(out, entity.Query{Strategy: entity.StrategyTestID, Value: target.TestID})
	}
	if target.CSS != "" {
		out = append(out, entity.Query{Strategy: entity.StrategyCSS, Value: target.CSS})
	}
	return out
}
