package failurelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"browser-observer/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLog(t *testing.T) *JSONL {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "logs", "failures.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func report(agent string, failures ...entity.RuleFailure) entity.ValidationReport {
	passed := true
	for _, f := range failures {
		if f.Level == entity.LevelCritical {
			passed = false
		}
	}
	return entity.ValidationReport{
		RunID:     "run-1",
		Agent:     agent,
		Passed:    passed,
		Failures:  failures,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestJSONL_OneLinePerReport(t *testing.T) {
	l := openLog(t)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, report("observer")))
	require.NoError(t, l.Append(ctx, report("navigator",
		entity.RuleFailure{Rule: "action_budget", Level: entity.LevelWarning, Reason: "30 of 30 actions used"},
		entity.RuleFailure{Rule: "step_failures", Level: entity.LevelInfo, Reason: "1 of 3 steps failed"},
	)))

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	lines := splitLines(data)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"agent":"observer"`)
	assert.Contains(t, lines[0], `"passed":true`)
	assert.Contains(t, lines[0], `"failures":[]`)
	assert.Contains(t, lines[1], `"rule":"action_budget"`)
}

func TestJSONL_QueryFilters(t *testing.T) {
	l := openLog(t)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, report("observer",
		entity.RuleFailure{Rule: "state_captured", Level: entity.LevelCritical, Reason: "no screenshots"},
	)))
	require.NoError(t, l.Append(ctx, report("navigator",
		entity.RuleFailure{Rule: "action_budget", Level: entity.LevelWarning, Reason: "budget"},
		entity.RuleFailure{Rule: "step_failures", Level: entity.LevelInfo, Reason: "failed"},
	)))

	all, err := l.Query(ctx, entity.FailureFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	critical, err := l.Query(ctx, entity.FailureFilter{Level: entity.LevelCritical})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "observer", critical[0].Agent)
	assert.Equal(t, "no screenshots", critical[0].Reason)
	assert.Equal(t, "run-1", critical[0].RunID)

	nav, err := l.Query(ctx, entity.FailureFilter{Agent: "navigator", Rule: "step_failures"})
	require.NoError(t, err)
	require.Len(t, nav, 1)

	latest, err := l.Query(ctx, entity.FailureFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "step_failures", latest[0].Rule)
}

func TestJSONL_Stats(t *testing.T) {
	l := openLog(t)
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, report("observer")))
	require.NoError(t, l.Append(ctx, report("observer",
		entity.RuleFailure{Rule: "state_captured", Level: entity.LevelCritical, Reason: "x"},
	)))
	require.NoError(t, l.Append(ctx, report("archivist",
		entity.RuleFailure{Rule: "dataset_written", Level: entity.LevelWarning, Reason: "y"},
	)))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Reports)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, map[string]int{"observer": 1, "archivist": 1}, stats.ByAgent)
	assert.Equal(t, 1, stats.ByLevel[entity.LevelCritical])
	assert.Equal(t, 1, stats.ByRule["dataset_written"])
}

func TestJSONL_SkipsCorruptLines(t *testing.T) {
	l := openLog(t)
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, report("observer",
		entity.RuleFailure{Rule: "state_description", Level: entity.LevelWarning, Reason: "empty"},
	)))

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"agent":"observer","fail`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := l.Query(ctx, entity.FailureFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONL_ConcurrentAppends(t *testing.T) {
	l := openLog(t)
	ctx := context.Background()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r := report("observer", entity.RuleFailure{
					Rule:   "state_description",
					Level:  entity.LevelWarning,
					Reason: fmt.Sprintf("writer %d entry %d", w, i),
				})
				assert.NoError(t, l.Append(ctx, r))
			}
		}(w)
	}
	wg.Wait()

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, stats.Reports, "every line must decode")
}

func TestJSONL_MissingFileIsEmpty(t *testing.T) {
	l := &JSONL{path: filepath.Join(t.TempDir(), "none.jsonl")}
	entries, err := l.Query(context.Background(), entity.FailureFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJSONL_AppendAfterClose(t *testing.T) {
	l := openLog(t)
	require.NoError(t, l.Close())
	assert.Error(t, l.Append(context.Background(), report("observer")))
}

func splitLines(data []byte) []string {
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}
