package observer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"browser-observer/internal/application/port/input"
	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/usecase/constitution"
	"browser-observer/internal/usecase/dedup"
	"browser-observer/internal/usecase/detector"
)

var _ input.StateObserver = (*Observer)(nil)

const (
	SourceOracle    = "oracle"
	SourceHeuristic = "heuristic"
)

type Config struct {
	RunID string
	// Task is forwarded to the significance oracle.
	Task string

	IdleTimeout  time.Duration
	PollInterval time.Duration

	// Viewports are captured in order; the first one feeds the oracle.
	Viewports []entity.Viewport
	FocusCrop bool

	OracleTimeout time.Duration

	DedupWindow         int
	DedupThreshold      float64
	StructuralThreshold float64
}

func DefaultConfig() Config {
	return Config{
		IdleTimeout:         8 * time.Second,
		PollInterval:        150 * time.Millisecond,
		Viewports:           []entity.Viewport{entity.ViewportDesktop},
		FocusCrop:           true,
		OracleTimeout:       20 * time.Second,
		DedupWindow:         dedup.DefaultWindowSize,
		DedupThreshold:      dedup.DefaultThreshold,
		StructuralThreshold: detector.DefaultStructuralThreshold,
	}
}

type Dependencies struct {
	Browser output.BrowserPort
	Store   output.ScreenshotStore
	// Oracle is optional; without it significance comes from local heuristics.
	Oracle  output.SignificanceOracle
	Gate    constitution.Enforcer
	Logger  output.LoggerPort
	Metrics output.MetricsPort
}

// Observer owns the per-run observation state: previous snapshot, detector
// memory, dedup window and the ordered list of retained states. One
// Observer serves exactly one run and is not safe for concurrent use.
type Observer struct {
	cfg  Config
	deps Dependencies

	bank   *detector.Bank
	window *dedup.Window

	prev   *entity.RoleTreeSnapshot
	seq    int
	ids    map[string]int
	states []entity.UIState
}

func New(cfg Config, deps Dependencies) *Observer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 150 * time.Millisecond
	}
	if len(cfg.Viewports) == 0 {
		cfg.Viewports = []entity.Viewport{entity.ViewportDesktop}
	}
	return &Observer{
		cfg:    cfg,
		deps:   deps,
		bank:   detector.NewBank(detector.Config{StructuralThreshold: cfg.StructuralThreshold}),
		window: dedup.NewWindow(cfg.DedupWindow, cfg.DedupThreshold),
		ids:    make(map[string]int),
	}
}

// Observe waits for the page to settle, captures it and decides whether the
// result is a new state. It returns (nil, nil) for a duplicate and wraps
// entity.ErrCaptureFailure when the page could not be captured.
func (o *Observer) Observe(ctx context.Context, actionDescription string) (*entity.UIState, error) {
	index := o.seq
	o.seq++
	log := o.deps.Logger.WithFields(map[string]any{"run_id": o.cfg.RunID, "observation": index})

	tree, signals, timedOut, err := o.waitForIdle(ctx)
	if err != nil {
		return nil, err
	}
	if timedOut {
		log.Warn("Page did not settle before idle timeout", "timeout", o.cfg.IdleTimeout)
	}

	detections := o.bank.Run(tree, o.prev, signals)
	o.prev = tree
	hasModal := detections.Present(entity.DetectionModal)
	hasToast := detections.Present(entity.DetectionToast)

	shots, err := o.capture(ctx, hasModal, log)
	if err != nil {
		return nil, err
	}

	sig := dedup.Compute(tree.URL, tree.Nodes, hasModal, hasToast)
	if !o.window.ShouldRetain(sig) {
		o.deps.Metrics.StateObserved(false)
		log.Debug("Duplicate state skipped", "url", tree.URL, "hash", sig.Hash[:8])
		return nil, nil
	}

	refs := make(map[string]string, len(shots))
	for _, shot := range shots {
		ref, err := o.deps.Store.Save(ctx, o.cfg.RunID, index, shot)
		if err != nil {
			return nil, fmt.Errorf("%w: save %s screenshot: %w", entity.ErrCaptureFailure, shot.Viewport, err)
		}
		shot.Ref = ref
		refs[shot.Viewport] = ref
	}

	meta := entity.StateMetadata{
		Detections:             detections,
		RoleSummary:            tree.Summary(),
		NodeCount:              len(tree.Nodes),
		TimedOutWaitingForIdle: timedOut,
		StepIndex:              index,
	}
	o.classify(ctx, &meta, tree.URL, shots[0], detections, log)

	state := &entity.UIState{
		ID:          o.nextID(sig.Hash),
		URL:         tree.URL,
		Description: Describe(tree.URL, detections),
		HasModal:    hasModal,
		Action:      actionDescription,
		Screenshots: refs,
		Metadata:    meta,
		Signature:   sig,
		CapturedAt:  time.Now().UTC(),
	}

	if o.deps.Gate != nil {
		if _, err := o.deps.Gate.Enforce(ctx, constitution.AgentObserver, constitution.Subject{
			RunID:  o.cfg.RunID,
			Input:  actionDescription,
			Output: state,
			Context: map[string]any{
				"step_index": meta.StepIndex,
				"viewports":  o.viewportNames(),
			},
		}); err != nil {
			return nil, err
		}
	}

	o.states = append(o.states, *state)
	o.window.Push(sig)
	o.deps.Metrics.StateObserved(true)
	log.Info("State retained",
		"state_id", state.ID,
		"url", state.URL,
		"significance", meta.Significance,
		"description", state.Description,
	)
	return state, nil
}

// States returns the retained states in capture order.
func (o *Observer) States() []entity.UIState {
	out := make([]entity.UIState, len(o.states))
	copy(out, o.states)
	return out
}

// waitForIdle polls until the async-load signal clears or IdleTimeout
// passes. Timing out is not an error; the caller records it.
func (o *Observer) waitForIdle(ctx context.Context) (*entity.RoleTreeSnapshot, entity.DOMSignals, bool, error) {
	deadline := time.Now().Add(o.cfg.IdleTimeout)
	loading := detector.AsyncLoad{}

	for {
		tree, err := o.deps.Browser.RoleTree(ctx)
		if err != nil {
			return nil, entity.DOMSignals{}, false, fmt.Errorf("%w: role tree: %w", entity.ErrCaptureFailure, err)
		}
		signals, err := o.deps.Browser.DOMSignals(ctx)
		if err != nil {
			return nil, entity.DOMSignals{}, false, fmt.Errorf("%w: dom signals: %w", entity.ErrCaptureFailure, err)
		}

		if !loading.Detect(tree, nil, signals).Present {
			return tree, signals, false, nil
		}
		if !time.Now().Before(deadline) {
			return tree, signals, true, nil
		}

		select {
		case <-ctx.Done():
			return nil, entity.DOMSignals{}, false, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

func (o *Observer) viewportNames() []string {
	names := make([]string, 0, len(o.cfg.Viewports))
	for _, vp := range o.cfg.Viewports {
		names = append(names, vp.Name)
	}
	return names
}

func (o *Observer) capture(ctx context.Context, hasModal bool, log output.LoggerPort) ([]*entity.Screenshot, error) {
	shots := make([]*entity.Screenshot, 0, len(o.cfg.Viewports)+1)
	for _, vp := range o.cfg.Viewports {
		shot, err := o.deps.Browser.Screenshot(ctx, vp)
		if err != nil {
			return nil, fmt.Errorf("%w: %s screenshot: %w", entity.ErrCaptureFailure, vp.Name, err)
		}
		shot.Viewport = vp.Name
		shots = append(shots, shot)
	}

	if hasModal && o.cfg.FocusCrop {
		shot, err := o.deps.Browser.FocusScreenshot(ctx)
		if err != nil {
			log.Warn("Focus crop failed", "error", err)
		} else if shot != nil {
			shot.Viewport = entity.ViewportFocus
			shots = append(shots, shot)
		}
	}
	return shots, nil
}

// classify asks the oracle for a significance label and falls back to
// Heuristic when the oracle cannot answer in time.
func (o *Observer) classify(ctx context.Context, meta *entity.StateMetadata, url string, shot *entity.Screenshot, detections entity.Detections, log output.LoggerPort) {
	if o.deps.Oracle != nil {
		octx := ctx
		if o.cfg.OracleTimeout > 0 {
			var cancel context.CancelFunc
			octx, cancel = context.WithTimeout(ctx, o.cfg.OracleTimeout)
			defer cancel()
		}

		req := output.ClassifyRequest{
			Screenshot: shot.Data,
			Format:     shot.Format,
			Task:       o.cfg.Task,
			URL:        url,
			HasModal:   detections.Present(entity.DetectionModal),
			HasToast:   detections.Present(entity.DetectionToast),
		}
		if detections.Present(entity.DetectionFormValidity) {
			valid := true
			req.FormValid = &valid
		}

		c, err := o.deps.Oracle.Classify(octx, req)
		switch {
		case err == nil && c != nil && c.Significance.Valid():
			meta.Significance = c.Significance
			meta.SignificanceConfidence = c.Confidence
			meta.SignificanceReasoning = c.Reasoning
			meta.SignificanceSource = SourceOracle
			return
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("Significance oracle failed, using heuristic", "error", err)
		}
	}

	meta.Significance, meta.SignificanceConfidence, meta.SignificanceReasoning = Heuristic(detections)
	meta.SignificanceSource = SourceHeuristic
}

// Heuristic is the local significance rule used when no oracle answers.
func Heuristic(d entity.Detections) (entity.Significance, float64, string) {
	switch {
	case d.Present(entity.DetectionModal):
		return entity.SignificanceCritical, 0.6, "dialog open"
	case d.Present(entity.DetectionToast):
		return entity.SignificanceCritical, 0.6, "notification visible"
	case d.Present(entity.DetectionStructuralDiff):
		return entity.SignificanceCritical, 0.6, "page structure changed"
	}
	return entity.SignificanceSupporting, 0.5, "no salient signal"
}

func (o *Observer) nextID(hash string) string {
	base := "state_" + hash[:8]
	o.ids[base]++
	if n := o.ids[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}
