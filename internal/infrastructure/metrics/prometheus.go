package metrics

import (
	"strconv"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"

	"github.com/prometheus/client_golang/prometheus"
)

var _ output.MetricsPort = (*Collector)(nil)

type Collector struct {
	actions     *prometheus.CounterVec
	retries     *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	escalations *prometheus.CounterVec
	states      *prometheus.CounterVec
	validations *prometheus.CounterVec
	ruleFails   *prometheus.CounterVec
	runs        *prometheus.CounterVec
}

// New registers the collector's metrics on reg. Pass
// prometheus.DefaultRegisterer to expose them through promhttp.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_actions_total",
			Help: "Plan steps finished, by action and final status.",
		}, []string{"action", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_action_retries_total",
			Help: "Retry attempts after resolution or transient action failures.",
		}, []string{"action"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_resolutions_total",
			Help: "Selector resolution attempts per strategy tier.",
		}, []string{"strategy", "ok"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_escalations_total",
			Help: "Vision fallback escalations.",
		}, []string{"found"}),
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_states_total",
			Help: "Observations, split into retained and deduplicated.",
		}, []string{"retained"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_validations_total",
			Help: "Quality gate reports per agent.",
		}, []string{"agent", "passed"}),
		ruleFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_rule_failures_total",
			Help: "Failed constitution rules.",
		}, []string{"agent", "rule", "level"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_runs_total",
			Help: "Finished workflow runs by termination.",
		}, []string{"termination"}),
	}
	reg.MustRegister(c.actions, c.retries, c.resolutions, c.escalations, c.states, c.validations, c.ruleFails, c.runs)
	return c
}

func (c *Collector) ActionFinished(action entity.ActionType, status entity.StepStatus) {
	c.actions.WithLabelValues(string(action), string(status)).Inc()
}

func (c *Collector) ActionRetried(action entity.ActionType) {
	c.retries.WithLabelValues(string(action)).Inc()
}

func (c *Collector) Resolution(strategy entity.Strategy, ok bool) {
	c.resolutions.WithLabelValues(string(strategy), strconv.FormatBool(ok)).Inc()
}

func (c *Collector) Escalation(found bool) {
	c.escalations.WithLabelValues(strconv.FormatBool(found)).Inc()
}

func (c *Collector) StateObserved(retained bool) {
	c.states.WithLabelValues(strconv.FormatBool(retained)).Inc()
}

func (c *Collector) Validation(agent string, passed bool, failures []entity.RuleFailure) {
	c.validations.WithLabelValues(agent, strconv.FormatBool(passed)).Inc()
	for _, f := range failures {
		c.ruleFails.WithLabelValues(agent, f.Rule, string(f.Level)).Inc()
	}
}

func (c *Collector) RunFinished(termination entity.Termination) {
	c.runs.WithLabelValues(string(termination)).Inc()
}

type nop struct{}

func Nop() output.MetricsPort { return nop{} }

func (nop) ActionFinished(entity.ActionType, entity.StepStatus) {}
func (nop) ActionRetried(entity.ActionType)                     {}
func (nop) Resolution(entity.Strategy, bool)                    {}
func (nop) Escalation(bool)                                     {}
func (nop) StateObserved(bool)                                  {}
func (nop) Validation(string, bool, []entity.RuleFailure)       {}
func (nop) RunFinished(entity.Termination)                      {}
