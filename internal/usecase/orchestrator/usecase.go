package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/usecase/archivist"
	"browser-observer/internal/usecase/constitution"
	"browser-observer/internal/usecase/navigator"
	"browser-observer/internal/usecase/observer"
	"browser-observer/internal/usecase/resolver"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Navigator navigator.Config
	Observer  observer.Config
	// App labels archived runs.
	App string
	// Parallelism caps concurrent runs in RunAll; zero means unlimited.
	Parallelism int
}

func DefaultConfig() Config {
	return Config{
		Navigator:   navigator.DefaultConfig(),
		Observer:    observer.DefaultConfig(),
		Parallelism: 2,
	}
}

type Dependencies struct {
	Browsers     output.BrowserFactory
	Store        output.ScreenshotStore
	Vision       output.VisionOracle
	Significance output.SignificanceOracle
	Gate         constitution.Enforcer
	Archivist    *archivist.UseCase
	Logger       output.LoggerPort
	Metrics      output.MetricsPort
}

type RunResult struct {
	RunID    string
	Task     string
	Outcome  *entity.ExecutionOutcome
	Location string
	Duration time.Duration
	Err      error
}

// UseCase wires one resolver, observer and navigator per run around a
// fresh browser session, then archives what the run observed.
type UseCase struct {
	cfg  Config
	deps Dependencies
}

func New(cfg Config, deps Dependencies) *UseCase {
	return &UseCase{cfg: cfg, deps: deps}
}

// Run executes a single plan end to end.
func (uc *UseCase) Run(ctx context.Context, plan entity.Plan) *RunResult {
	start := time.Now()
	res := &RunResult{RunID: uuid.NewString(), Task: plan.Task}
	log := uc.deps.Logger.WithFields(map[string]any{"run_id": res.RunID, "task": plan.Task})

	defer func() {
		res.Duration = time.Since(start)
	}()

	if uc.deps.Gate != nil {
		if _, err := uc.deps.Gate.Enforce(ctx, constitution.AgentPlanner, constitution.Subject{
			RunID:   res.RunID,
			Input:   plan.Task,
			Output:  &plan,
			Context: map[string]any{"app": uc.cfg.App},
		}); err != nil {
			res.Err = fmt.Errorf("plan rejected: %w", err)
			log.Error("Plan rejected", "error", err)
			return res
		}
	}

	browser, err := uc.deps.Browsers.Open(ctx)
	if err != nil {
		res.Err = fmt.Errorf("failed to open browser: %w", err)
		log.Error("Failed to open browser", "error", err)
		return res
	}
	defer browser.Close()

	obsCfg := uc.cfg.Observer
	obsCfg.RunID = res.RunID
	obsCfg.Task = plan.Task
	obs := observer.New(obsCfg, observer.Dependencies{
		Browser: browser,
		Store:   uc.deps.Store,
		Oracle:  uc.deps.Significance,
		Gate:    uc.deps.Gate,
		Logger:  uc.deps.Logger,
		Metrics: uc.deps.Metrics,
	})

	navCfg := uc.cfg.Navigator
	navCfg.RunID = res.RunID
	nav := navigator.New(navCfg, navigator.Dependencies{
		Browser:  browser,
		Resolver: resolver.New(browser, uc.deps.Logger, uc.deps.Metrics),
		Observer: obs,
		Vision:   uc.deps.Vision,
		Gate:     uc.deps.Gate,
		Logger:   uc.deps.Logger,
		Metrics:  uc.deps.Metrics,
	})

	res.Outcome, err = nav.Execute(ctx, plan)
	if res.Outcome == nil || uc.deps.Archivist == nil {
		res.Err = err
		return res
	}

	// Aborted and cancelled runs still hand what they observed to the sink.
	location, archiveErr := uc.deps.Archivist.Archive(context.WithoutCancel(ctx), output.RunInfo{
		RunID: res.RunID,
		Task:  plan.Task,
		App:   uc.cfg.App,
	}, res.Outcome.States)
	res.Location = location
	res.Err = errors.Join(err, archiveErr)
	return res
}

// RunAll executes independent plans concurrently. A failing run never
// cancels its siblings; each result carries its own error.
func (uc *UseCase) RunAll(ctx context.Context, plans []entity.Plan) []*RunResult {
	results := make([]*RunResult, len(plans))

	var g errgroup.Group
	if uc.cfg.Parallelism > 0 {
		g.SetLimit(uc.cfg.Parallelism)
	}
	for i, plan := range plans {
		g.Go(func() error {
			results[i] = uc.Run(ctx, plan)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
