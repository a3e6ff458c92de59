package navigator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"browser-observer/internal/application/port/input"
	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/usecase/constitution"
)

var _ input.PlanExecutor = (*Navigator)(nil)

type Config struct {
	RunID        string
	ActionBudget int
	MaxAttempts  int

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// WaitDefault is how long a wait step without value sleeps.
	WaitDefault time.Duration

	VisionConfidence float64
	// OracleTimeout bounds one vision escalation call.
	OracleTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActionBudget:     30,
		MaxAttempts:      3,
		RetryBaseDelay:   250 * time.Millisecond,
		RetryMaxDelay:    4 * time.Second,
		WaitDefault:      time.Second,
		VisionConfidence: 0.7,
		OracleTimeout:    20 * time.Second,
	}
}

type TargetResolver interface {
	Resolve(ctx context.Context, target entity.Target) (*entity.ResolvedTarget, error)
}

type Dependencies struct {
	Browser  output.BrowserPort
	Resolver TargetResolver
	Observer input.StateObserver
	// Vision is optional; without it exhausted steps fail instead of
	// escalating.
	Vision  output.VisionOracle
	Gate    constitution.Enforcer
	Logger  output.LoggerPort
	Metrics output.MetricsPort
}

// Navigator executes one plan against one browser session, strictly one
// step at a time.
type Navigator struct {
	cfg   Config
	deps  Dependencies
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, deps Dependencies) *Navigator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Navigator{cfg: cfg, deps: deps, sleep: sleepContext}
}

// Execute runs the plan until it completes, the action budget is spent, an
// auth redirect is detected or a critical violation aborts it. Budget and
// auth terminations are reported in the outcome, not as errors.
func (n *Navigator) Execute(ctx context.Context, plan entity.Plan) (*entity.ExecutionOutcome, error) {
	log := n.deps.Logger.WithField("run_id", n.cfg.RunID)
	out := &entity.ExecutionOutcome{
		RunID:        n.cfg.RunID,
		Termination:  entity.TerminationPlanCompleted,
		Steps:        make([]entity.StepRecord, 0, len(plan.Steps)),
		ActionBudget: n.cfg.ActionBudget,
	}
	startURL := plan.StartURL()

	log.Info("Executing plan", "task", plan.Task, "steps", len(plan.Steps), "budget", n.cfg.ActionBudget)

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return n.abort(ctx, out, err)
		}

		if n.cfg.ActionBudget > 0 && out.CommittedActions >= n.cfg.ActionBudget {
			log.Warn("Action budget exhausted", "committed", out.CommittedActions, "remaining_steps", len(plan.Steps)-i)
			out.Termination = entity.TerminationBudgetExceeded
			if _, err := n.observe(ctx, "budget exhausted"); err != nil && !errors.Is(err, entity.ErrCaptureFailure) {
				return n.abort(ctx, out, err)
			}
			break
		}

		rec := n.runStep(ctx, i, step, log)
		if rec.Status == entity.StepCommitted {
			out.CommittedActions++
		}

		authRedirect := false
		if rec.Status == entity.StepCommitted && mayNavigate(step.Action) {
			current, err := n.deps.Browser.CurrentURL(ctx)
			if err == nil && IsAuthRedirect(startURL, current) && !RequestedLogin(step, current) {
				log.Warn("Auth redirect detected, stopping run", "url", current)
				authRedirect = true
			}
		}

		st, err := n.observe(ctx, step.Describe())
		switch {
		case err == nil && st != nil:
			rec.StateID = st.ID
		case errors.Is(err, entity.ErrCaptureFailure):
			log.Warn("State capture failed", "step", i, "error", err)
			rec.CaptureFailed = true
		case err != nil:
			out.Steps = append(out.Steps, rec)
			return n.abort(ctx, out, err)
		}
		out.Steps = append(out.Steps, rec)

		if authRedirect {
			out.Termination = entity.TerminationAuthRedirectDetected
			break
		}
	}

	n.finish(ctx, out)

	if n.deps.Gate != nil {
		if _, err := n.deps.Gate.Enforce(ctx, constitution.AgentNavigator, constitution.Subject{
			RunID:  n.cfg.RunID,
			Input:  plan,
			Output: out,
			Context: map[string]any{
				"start_url":     startURL,
				"action_budget": n.cfg.ActionBudget,
			},
		}); err != nil {
			out.Termination = entity.TerminationAborted
			out.AbortReason = err.Error()
			n.deps.Metrics.RunFinished(out.Termination)
			return out, err
		}
	}

	n.deps.Metrics.RunFinished(out.Termination)
	log.Info("Plan finished",
		"termination", out.Termination,
		"committed", out.CommittedActions,
		"failed_steps", out.FailedSteps(),
		"states", len(out.States),
	)
	return out, nil
}

func (n *Navigator) runStep(ctx context.Context, index int, step entity.PlanStep, log output.LoggerPort) entity.StepRecord {
	start := time.Now()
	rec := entity.StepRecord{Index: index, Step: step, Status: entity.StepPending}
	log = log.WithFields(map[string]any{"step": index, "action": step.Action})

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		rec.Attempts = attempt
		if attempt > 1 {
			rec.Status = entity.StepRetrying
			n.deps.Metrics.ActionRetried(step.Action)
			delay := n.backoff(attempt - 1)
			log.Debug("Retrying step", "attempt", attempt, "delay", delay, "error", lastErr)
			if err := n.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		resolved, err := n.attempt(ctx, step, &rec)
		if err == nil {
			rec.Status = entity.StepCommitted
			if resolved != nil {
				rec.Strategy = resolved.Strategy
				rec.Confidence = resolved.Confidence
			}
			break
		}
		lastErr = err
		if !Retryable(err) || ctx.Err() != nil {
			break
		}
	}

	if rec.Status != entity.StepCommitted && n.deps.Vision != nil && Retryable(lastErr) &&
		ctx.Err() == nil && step.Target.Selectable() && escalates(step.Action) {
		if err := n.escalate(ctx, step, &rec, log); err == nil {
			lastErr = nil
		} else {
			lastErr = err
		}
	}

	if rec.Status != entity.StepCommitted {
		rec.Status = entity.StepFailed
		if lastErr != nil {
			rec.Error = lastErr.Error()
		}
		log.Warn("Step failed", "attempts", rec.Attempts, "escalated", rec.Escalated, "error", lastErr)
	} else {
		log.Info("Step committed", "strategy", rec.Strategy, "attempts", rec.Attempts)
	}

	rec.Duration = time.Since(start)
	n.deps.Metrics.ActionFinished(step.Action, rec.Status)
	return rec
}

// attempt runs one try of a step: resolve, act. Resolution is redone on
// every attempt since the page may have changed.
func (n *Navigator) attempt(ctx context.Context, step entity.PlanStep, rec *entity.StepRecord) (*entity.ResolvedTarget, error) {
	b := n.deps.Browser

	switch step.Action {
	case entity.ActionNavigate:
		if err := validateURL(step.Target.URL); err != nil {
			return nil, err
		}
		rec.Status = entity.StepActing
		if err := b.Navigate(ctx, step.Target.URL); err != nil {
			return nil, entity.Transient(fmt.Errorf("navigate: %w", err))
		}
		return nil, nil

	case entity.ActionScroll:
		rec.Status = entity.StepActing
		direction := step.Value
		if direction == "" {
			direction = "down"
		}
		return nil, b.Scroll(ctx, direction)

	case entity.ActionWait:
		if !step.Target.Selectable() {
			rec.Status = entity.StepActing
			return nil, n.sleep(ctx, n.waitDuration(step.Value))
		}
		rec.Status = entity.StepResolving
		return n.deps.Resolver.Resolve(ctx, step.Target)

	case entity.ActionClick, entity.ActionTypeText, entity.ActionSubmit:
		rec.Status = entity.StepResolving
		resolved, err := n.deps.Resolver.Resolve(ctx, step.Target)
		if err != nil {
			return nil, err
		}

		rec.Status = entity.StepActing
		switch step.Action {
		case entity.ActionClick:
			err = b.Click(ctx, resolved.Handle)
		case entity.ActionTypeText:
			err = b.Fill(ctx, resolved.Handle, step.Value)
		default:
			err = b.Submit(ctx, resolved.Handle)
		}
		if err != nil {
			return nil, err
		}
		rec.Status = entity.StepVerifying
		return resolved, nil
	}

	return nil, fmt.Errorf("unsupported action %q", step.Action)
}

// escalate asks the vision oracle for coordinates once every selector tier
// and retry has failed.
func (n *Navigator) escalate(ctx context.Context, step entity.PlanStep, rec *entity.StepRecord, log output.LoggerPort) error {
	rec.Status = entity.StepEscalating
	rec.Escalated = true

	shot, err := n.deps.Browser.Screenshot(ctx, entity.ViewportDesktop)
	if err != nil {
		return fmt.Errorf("escalation screenshot: %w", err)
	}

	oracleCtx := ctx
	if n.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(ctx, n.cfg.OracleTimeout)
		defer cancel()
	}
	loc, err := n.deps.Vision.Locate(oracleCtx, output.LocateRequest{
		Screenshot:  shot.Data,
		Format:      shot.Format,
		Width:       shot.Width,
		Height:      shot.Height,
		Description: step.Target.String(),
		Action:      step.Action,
	})
	if err != nil {
		n.deps.Metrics.Escalation(false)
		return fmt.Errorf("vision oracle: %w", err)
	}
	if !loc.Found || loc.Confidence < n.cfg.VisionConfidence {
		n.deps.Metrics.Escalation(false)
		return fmt.Errorf("vision oracle could not locate %q (found=%t confidence=%.2f)", step.Target.String(), loc.Found, loc.Confidence)
	}
	n.deps.Metrics.Escalation(true)
	log.Info("Vision located target", "x", loc.X, "y", loc.Y, "confidence", loc.Confidence)

	rec.Status = entity.StepActing
	if err := n.deps.Browser.ClickAt(ctx, loc.X, loc.Y); err != nil {
		return err
	}
	switch step.Action {
	case entity.ActionTypeText:
		if err := n.deps.Browser.InsertText(ctx, step.Value); err != nil {
			return err
		}
	case entity.ActionSubmit:
		if err := n.deps.Browser.PressEnter(ctx); err != nil {
			return err
		}
	}

	rec.Status = entity.StepCommitted
	rec.Strategy = entity.StrategyVision
	rec.Confidence = loc.Confidence
	return nil
}

func (n *Navigator) observe(ctx context.Context, description string) (*entity.UIState, error) {
	if n.deps.Observer == nil {
		return nil, nil
	}
	return n.deps.Observer.Observe(ctx, description)
}

func (n *Navigator) abort(ctx context.Context, out *entity.ExecutionOutcome, err error) (*entity.ExecutionOutcome, error) {
	out.Termination = entity.TerminationAborted
	out.AbortReason = err.Error()
	n.finish(ctx, out)
	n.deps.Metrics.RunFinished(out.Termination)
	n.deps.Logger.Error("Run aborted", "run_id", n.cfg.RunID, "error", err)
	return out, err
}

func (n *Navigator) finish(ctx context.Context, out *entity.ExecutionOutcome) {
	if current, err := n.deps.Browser.CurrentURL(context.WithoutCancel(ctx)); err == nil {
		out.FinalURL = current
	}
	if n.deps.Observer != nil {
		out.States = n.deps.Observer.States()
	}
}

func (n *Navigator) backoff(retry int) time.Duration {
	d := n.cfg.RetryBaseDelay << (retry - 1)
	if n.cfg.RetryMaxDelay > 0 && (d > n.cfg.RetryMaxDelay || d <= 0) {
		d = n.cfg.RetryMaxDelay
	}
	return d
}

// waitDuration reads a Go duration ("2s") or plain milliseconds ("1500").
func (n *Navigator) waitDuration(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return n.cfg.WaitDefault
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return n.cfg.WaitDefault
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	return errors.Is(err, entity.ErrResolution) || errors.Is(err, entity.ErrTransientAction)
}

func escalates(a entity.ActionType) bool {
	return a == entity.ActionClick || a == entity.ActionTypeText || a == entity.ActionSubmit
}

func mayNavigate(a entity.ActionType) bool {
	return a == entity.ActionNavigate || a == entity.ActionClick || a == entity.ActionSubmit
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", entity.ErrInvalidURL, raw)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
