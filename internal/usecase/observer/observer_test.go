package observer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/logger"
	"browser-observer/internal/infrastructure/metrics"
	"browser-observer/internal/usecase/constitution"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage serves scripted role trees; each RoleTree call consumes one
// frame and the last frame repeats.
type fakePage struct {
	output.BrowserPort
	frames     []*entity.RoleTreeSnapshot
	signals    []entity.DOMSignals
	busy       bool
	calls      int
	shotErr    error
	focusCalls int
}

func (p *fakePage) RoleTree(context.Context) (*entity.RoleTreeSnapshot, error) {
	i := p.calls
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.calls++
	return p.frames[i], nil
}

func (p *fakePage) DOMSignals(context.Context) (entity.DOMSignals, error) {
	i := p.calls - 1
	if i >= len(p.signals) {
		return entity.DOMSignals{Busy: p.busy}, nil
	}
	return p.signals[i], nil
}

func (p *fakePage) Screenshot(_ context.Context, vp entity.Viewport) (*entity.Screenshot, error) {
	if p.shotErr != nil {
		return nil, p.shotErr
	}
	return &entity.Screenshot{Data: []byte("png"), Format: "png", Width: vp.Width, Height: vp.Height}, nil
}

func (p *fakePage) FocusScreenshot(context.Context) (*entity.Screenshot, error) {
	p.focusCalls++
	return &entity.Screenshot{Data: []byte("crop"), Format: "png"}, nil
}

type memStore struct {
	saved []string
}

func (s *memStore) Save(_ context.Context, runID string, index int, shot *entity.Screenshot) (string, error) {
	ref := fmt.Sprintf("%s/%03d_%s.png", runID, index, shot.Viewport)
	s.saved = append(s.saved, ref)
	return ref, nil
}

type stubOracle struct {
	result *output.Classification
	err    error
	delay  time.Duration
	calls  int
}

func (o *stubOracle) Classify(ctx context.Context, _ output.ClassifyRequest) (*output.Classification, error) {
	o.calls++
	if o.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.delay):
		}
	}
	return o.result, o.err
}

func page(url string, nodes ...entity.RoleNode) *entity.RoleTreeSnapshot {
	return &entity.RoleTreeSnapshot{URL: url, Nodes: nodes}
}

func n(role, name string) entity.RoleNode {
	return entity.RoleNode{Role: role, Name: name, Rect: entity.Rect{Width: 10, Height: 10}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RunID = "run-1"
	cfg.IdleTimeout = 50 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func newObserver(cfg Config, p *fakePage, store *memStore, oracle output.SignificanceOracle) *Observer {
	deps := Dependencies{
		Browser: p,
		Store:   store,
		Logger:  logger.NewNop(),
		Metrics: metrics.Nop(),
	}
	if oracle != nil {
		deps.Oracle = oracle
	}
	return New(cfg, deps)
}

func TestObserve_RetainsThenDeduplicates(t *testing.T) {
	home := page("https://app.test/", n("link", "Home"), n("button", "Search"))
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{home}}
	store := &memStore{}
	o := newObserver(testConfig(), p, store, nil)
	ctx := context.Background()

	first, err := o.Observe(ctx, "navigate(https://app.test/)")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "state_"+first.Signature.Hash[:8], first.ID)
	assert.Equal(t, "run-1/000_desktop.png", first.Screenshots["desktop"])
	assert.Equal(t, "app.test page", first.Description)
	assert.Equal(t, SourceHeuristic, first.Metadata.SignificanceSource)
	assert.Equal(t, entity.SignificanceSupporting, first.Metadata.Significance)

	again, err := o.Observe(ctx, "scroll(down)")
	require.NoError(t, err)
	assert.Nil(t, again, "identical page must not be retained")

	assert.Len(t, o.States(), 1)
	assert.Len(t, store.saved, 1, "duplicates are not persisted")
}

func TestObserve_TypedValueIsNewState(t *testing.T) {
	empty := n("searchbox", "Search")
	typed := empty
	typed.Value = "Python"
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{page("https://app.test/", empty)}}
	o := newObserver(testConfig(), p, &memStore{}, nil)
	ctx := context.Background()

	_, err := o.Observe(ctx, "navigate")
	require.NoError(t, err)

	p.frames = []*entity.RoleTreeSnapshot{page("https://app.test/", typed)}
	p.calls = 0
	st, err := o.Observe(ctx, "type")
	require.NoError(t, err)
	assert.NotNil(t, st)
}

func TestObserve_ScreenshotFailure(t *testing.T) {
	p := &fakePage{
		frames:  []*entity.RoleTreeSnapshot{page("https://app.test/")},
		shotErr: errors.New("target closed"),
	}
	o := newObserver(testConfig(), p, &memStore{}, nil)

	st, err := o.Observe(context.Background(), "click")
	assert.Nil(t, st)
	assert.ErrorIs(t, err, entity.ErrCaptureFailure)
	assert.Empty(t, o.States())
}

func TestObserve_WaitsForLoader(t *testing.T) {
	spinner := page("https://app.test/", n("progressbar", ""))
	ready := page("https://app.test/", n("heading", "Results"))
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{spinner, spinner, ready}}
	o := newObserver(testConfig(), p, &memStore{}, nil)

	st, err := o.Observe(context.Background(), "submit")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 3, p.calls)
	assert.False(t, st.Metadata.TimedOutWaitingForIdle)
	assert.Equal(t, 1, st.Metadata.RoleSummary["heading"])
}

func TestObserve_IdleTimeoutIsRecorded(t *testing.T) {
	p := &fakePage{
		frames: []*entity.RoleTreeSnapshot{page("https://app.test/", n("main", "Feed"))},
		busy:   true,
	}
	cfg := testConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	o := newObserver(cfg, p, &memStore{}, nil)

	st, err := o.Observe(context.Background(), "click")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Metadata.TimedOutWaitingForIdle)
	assert.Contains(t, st.Description, "Loading")
}

func TestObserve_ModalAddsFocusCrop(t *testing.T) {
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{page("https://app.test/issues", n("dialog", "Create issue"))}}
	o := newObserver(testConfig(), p, &memStore{}, nil)

	st, err := o.Observe(context.Background(), "click(button[New issue])")
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.True(t, st.HasModal)
	assert.Equal(t, 1, p.focusCalls)
	assert.Contains(t, st.Screenshots, entity.ViewportFocus)
	assert.Equal(t, entity.SignificanceCritical, st.Metadata.Significance)
	assert.Equal(t, "issues page | Dialog open", st.Description)
}

func TestObserve_OracleSignificance(t *testing.T) {
	tests := []struct {
		name       string
		oracle     *stubOracle
		wantSource string
		wantSig    entity.Significance
	}{
		{
			name:       "oracle answers",
			oracle:     &stubOracle{result: &output.Classification{Significance: entity.SignificanceOptional, Confidence: 0.9, Reasoning: "footer"}},
			wantSource: SourceOracle,
			wantSig:    entity.SignificanceOptional,
		},
		{
			name:       "oracle error",
			oracle:     &stubOracle{err: entity.ErrOracleUnavailable},
			wantSource: SourceHeuristic,
			wantSig:    entity.SignificanceSupporting,
		},
		{
			name:       "oracle invalid label",
			oracle:     &stubOracle{result: &output.Classification{Significance: "huge"}},
			wantSource: SourceHeuristic,
			wantSig:    entity.SignificanceSupporting,
		},
		{
			name:       "oracle too slow",
			oracle:     &stubOracle{delay: time.Second, result: &output.Classification{Significance: entity.SignificanceCritical}},
			wantSource: SourceHeuristic,
			wantSig:    entity.SignificanceSupporting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.OracleTimeout = 20 * time.Millisecond
			p := &fakePage{frames: []*entity.RoleTreeSnapshot{page("https://app.test/", n("link", "Home"))}}
			o := newObserver(cfg, p, &memStore{}, tt.oracle)

			st, err := o.Observe(context.Background(), "navigate")
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.Equal(t, 1, tt.oracle.calls)
			assert.Equal(t, tt.wantSource, st.Metadata.SignificanceSource)
			assert.Equal(t, tt.wantSig, st.Metadata.Significance)
		})
	}
}

type memLog struct{ reports []entity.ValidationReport }

func (l *memLog) Append(_ context.Context, r entity.ValidationReport) error {
	l.reports = append(l.reports, r)
	return nil
}
func (l *memLog) Query(context.Context, entity.FailureFilter) ([]entity.FailureEntry, error) {
	return nil, nil
}
func (l *memLog) Stats(context.Context) (*entity.FailureStats, error) { return nil, nil }

type registry map[string]constitution.Constitution

func (r registry) Get(agent string) (constitution.Constitution, bool) {
	c, ok := r[agent]
	return c, ok
}

func TestObserve_GateValidatesEveryRetainedState(t *testing.T) {
	log := &memLog{}
	gate := constitution.NewGate(registry{constitution.AgentObserver: constitution.Observer()}, log, metrics.Nop(), logger.NewNop())
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{page("https://app.test/", n("link", "Home"))}}
	o := New(testConfig(), Dependencies{Browser: p, Store: &memStore{}, Gate: gate, Logger: logger.NewNop(), Metrics: metrics.Nop()})

	st, err := o.Observe(context.Background(), "navigate")
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Len(t, log.reports, 1)
	assert.True(t, log.reports[0].Passed)
	assert.Equal(t, "run-1", log.reports[0].RunID)
}

func TestObserve_CriticalGateViolation(t *testing.T) {
	strict := constitution.Constitution{Agent: constitution.AgentObserver, Rules: []constitution.Rule{{
		Name:  "never",
		Level: entity.LevelCritical,
		Check: func(constitution.Subject) (bool, string, map[string]any) { return false, "rejected", nil },
	}}}
	gate := constitution.NewGate(registry{constitution.AgentObserver: strict}, &memLog{}, metrics.Nop(), logger.NewNop())
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{page("https://app.test/")}}
	o := New(testConfig(), Dependencies{Browser: p, Store: &memStore{}, Gate: gate, Logger: logger.NewNop(), Metrics: metrics.Nop()})

	st, err := o.Observe(context.Background(), "navigate")
	assert.Nil(t, st)
	assert.ErrorIs(t, err, entity.ErrCriticalViolation)
	assert.Empty(t, o.States())
}

func TestObserve_RevisitedStateGetsUniqueID(t *testing.T) {
	a := page("https://app.test/a", n("heading", "A"))
	b := page("https://app.test/b", n("heading", "B"))
	cfg := testConfig()
	cfg.DedupWindow = 1
	p := &fakePage{frames: []*entity.RoleTreeSnapshot{a}}
	o := newObserver(cfg, p, &memStore{}, nil)
	ctx := context.Background()

	first, err := o.Observe(ctx, "1")
	require.NoError(t, err)
	p.frames, p.calls = []*entity.RoleTreeSnapshot{b}, 0
	_, err = o.Observe(ctx, "2")
	require.NoError(t, err)
	p.frames, p.calls = []*entity.RoleTreeSnapshot{a}, 0
	third, err := o.Observe(ctx, "3")
	require.NoError(t, err)
	require.NotNil(t, third)

	assert.Equal(t, first.ID+"_2", third.ID)
	states := o.States()
	require.Len(t, states, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{states[0].Metadata.StepIndex, states[1].Metadata.StepIndex, states[2].Metadata.StepIndex})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		url  string
		d    entity.Detections
		want string
	}{
		{"https://en.wikipedia.org/wiki/Python_(programming_language)", nil, "Python (programming language) page"},
		{"https://app.test/", entity.Detections{{Kind: entity.DetectionToast, Present: true}}, "app.test page | Toast visible"},
		{"", nil, "Blank page"},
		{"https://app.test/signup/", entity.Detections{
			{Kind: entity.DetectionFormValidity, Present: true},
			{Kind: entity.DetectionStructuralDiff, Present: true, Score: 0.833},
		}, "signup page | Form valid | Structure changed (0.83)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.url, tt.d))
		})
	}
}

func TestHeuristic(t *testing.T) {
	sig, _, _ := Heuristic(entity.Detections{{Kind: entity.DetectionStructuralDiff, Present: true}})
	assert.Equal(t, entity.SignificanceCritical, sig)

	sig, _, _ = Heuristic(entity.Detections{{Kind: entity.DetectionAsyncLoad, Present: true}})
	assert.Equal(t, entity.SignificanceSupporting, sig)
}
