package constitution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/logger"
	"browser-observer/internal/infrastructure/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRegistry map[string]Constitution

func (m mapRegistry) Get(agent string) (Constitution, bool) {
	c, ok := m[agent]
	return c, ok
}

type memoryLog struct {
	mu      sync.Mutex
	reports []entity.ValidationReport
	err     error
}

func (l *memoryLog) Append(_ context.Context, r entity.ValidationReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.reports = append(l.reports, r)
	return nil
}

func (l *memoryLog) Query(context.Context, entity.FailureFilter) ([]entity.FailureEntry, error) {
	return nil, nil
}

func (l *memoryLog) Stats(context.Context) (*entity.FailureStats, error) {
	return nil, nil
}

func newGate(reg Registry, log *memoryLog) *Gate {
	return NewGate(reg, log, metrics.Nop(), logger.NewNop())
}

func pass(Subject) (bool, string, map[string]any) { return true, "", nil }

func TestGate_CriticalViolationRecordedOnce(t *testing.T) {
	log := &memoryLog{}
	reg := mapRegistry{"observer": {Agent: "observer", Rules: []Rule{
		{Name: "always_ok", Level: entity.LevelCritical, Check: pass},
		{Name: "must_fail", Level: entity.LevelCritical, Check: func(Subject) (bool, string, map[string]any) { return false, "broken", nil }},
	}}}

	report, err := newGate(reg, log).Enforce(context.Background(), "observer", Subject{RunID: "run-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrCriticalViolation)
	var ve *entity.ViolationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "observer", ve.Agent)

	assert.False(t, report.Passed)
	require.Len(t, log.reports, 1)
	logged := log.reports[0]
	assert.Equal(t, "run-1", logged.RunID)
	require.Len(t, logged.Critical(), 1)
	assert.Equal(t, "must_fail", logged.Critical()[0].Rule)
	assert.Equal(t, "broken", logged.Critical()[0].Reason)
}

func TestGate_WarningsDoNotFail(t *testing.T) {
	log := &memoryLog{}
	reg := mapRegistry{"navigator": {Agent: "navigator", Rules: []Rule{
		{Name: "soft", Description: "soft rule", Level: entity.LevelWarning, Check: func(Subject) (bool, string, map[string]any) { return false, "", nil }},
		{Name: "note", Level: entity.LevelInfo, Check: func(Subject) (bool, string, map[string]any) { return false, "fyi", nil }},
	}}}

	report, err := newGate(reg, log).Enforce(context.Background(), "navigator", Subject{})

	require.NoError(t, err)
	assert.True(t, report.Passed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "soft rule", report.Failures[0].Reason, "description fills an empty reason")
	require.Len(t, log.reports, 1, "passing reports are logged too")
}

func TestGate_PanickingRuleBecomesWarning(t *testing.T) {
	reg := mapRegistry{"planner": {Agent: "planner", Rules: []Rule{
		{Name: "explodes", Level: entity.LevelCritical, Check: func(s Subject) (bool, string, map[string]any) {
			_ = s.Output.(*entity.Plan).Steps
			return true, "", nil
		}},
	}}}

	report, err := newGate(reg, &memoryLog{}).Enforce(context.Background(), "planner", Subject{Output: "not a plan"})

	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, entity.LevelWarning, report.Failures[0].Level)
	assert.Contains(t, report.Failures[0].Reason, "validator error")
}

func TestGate_FailureCarriesDetailsAndContext(t *testing.T) {
	log := &memoryLog{}
	reg := mapRegistry{"observer": {Agent: "observer", Rules: []Rule{
		{Name: "with_details", Level: entity.LevelWarning, Check: func(s Subject) (bool, string, map[string]any) {
			return false, "off by one", map[string]any{"index": s.Context["step_index"].(int) + 1}
		}},
		{Name: "bare", Level: entity.LevelInfo, Check: func(Subject) (bool, string, map[string]any) { return false, "bare", nil }},
	}}}

	report, err := newGate(reg, log).Enforce(context.Background(), "observer", Subject{Context: map[string]any{"step_index": 4}})

	require.NoError(t, err)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, map[string]any{"index": 5, "step_index": 4}, report.Failures[0].Details)
	assert.Equal(t, map[string]any{"step_index": 4}, report.Failures[1].Details)
	require.Len(t, log.reports, 1)
	assert.Equal(t, 5, log.reports[0].Failures[0].Details["index"])
}

func TestGate_NoContextKeepsRuleDetails(t *testing.T) {
	reg := mapRegistry{"planner": {Agent: "planner", Rules: []Rule{
		{Name: "plain", Level: entity.LevelInfo, Check: func(Subject) (bool, string, map[string]any) { return false, "x", nil }},
	}}}

	report := newGate(reg, &memoryLog{}).Validate(context.Background(), "planner", Subject{})
	require.Len(t, report.Failures, 1)
	assert.Nil(t, report.Failures[0].Details)
}

func TestGate_UnknownAgentPasses(t *testing.T) {
	log := &memoryLog{}
	report := newGate(mapRegistry{}, log).Validate(context.Background(), "ghost", Subject{})
	assert.True(t, report.Passed)
	assert.Empty(t, log.reports)
}

func TestGate_LogErrorDoesNotChangeVerdict(t *testing.T) {
	log := &memoryLog{err: errors.New("disk full")}
	reg := mapRegistry{"observer": {Agent: "observer", Rules: []Rule{{Name: "ok", Level: entity.LevelCritical, Check: pass}}}}

	_, err := newGate(reg, log).Enforce(context.Background(), "observer", Subject{})
	assert.NoError(t, err)
}

func TestGate_RulesDoNotMutate(t *testing.T) {
	plan := &entity.Plan{Steps: []entity.PlanStep{{Action: entity.ActionNavigate, Target: entity.Target{URL: "https://a.test"}}}}
	before := *plan
	reg := mapRegistry{AgentPlanner: Planner()}

	newGate(reg, &memoryLog{}).Validate(context.Background(), AgentPlanner, Subject{Output: plan})
	assert.Equal(t, before, *plan)
}
