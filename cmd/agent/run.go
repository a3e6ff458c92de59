package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/di"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/env"
	"browser-observer/internal/infrastructure/planner"
	"browser-observer/internal/usecase/orchestrator"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run plans and archive the observed states",
	Long: `Loads one or more plan files and runs every plan (or only the tasks named
with --task). Plans run concurrently, each in its own browser session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, _ := cmd.Flags().GetStringArray("plan")
		tasks, _ := cmd.Flags().GetStringSlice("task")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		failed, err := runPlans(cmd.Context(), cmd.OutOrStdout(), paths, tasks, timeout)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d run(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("plan", "p", nil, "Plan file (yaml or json), repeatable")
	runCmd.Flags().StringSliceP("task", "t", nil, "Only run these tasks")
	runCmd.Flags().Duration("timeout", 30*time.Minute, "Overall deadline for all runs")
	_ = runCmd.MarkFlagRequired("plan")
}

func runPlans(ctx context.Context, w io.Writer, paths, tasks []string, timeout time.Duration) (int, error) {
	files := make([]*planner.File, 0, len(paths))
	for _, path := range paths {
		f, err := planner.Load(path)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, f)
	}
	plans, err := selectPlans(ctx, planner.NewFilePlanner(files...), tasks)
	if err != nil {
		return 0, err
	}

	envService := env.NewEnvService()
	cfg := di.ConfigFromEnv(envService)
	if cfg.App == "" && len(files) > 0 {
		cfg.App = files[0].App
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to initialise: %w", err)
	}
	defer container.Close()

	if addr := envService.Get("METRICS_ADDR"); addr != "" {
		srv := serveMetrics(addr, container.Registry, container.Logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	container.Logger.Info("Starting runs", "plans", len(plans), "output_dir", cfg.OutputDir)
	results := container.Orchestrator.RunAll(ctx, plans)
	return printResults(w, results), nil
}

type planSource interface {
	Plan(ctx context.Context, task string) (*entity.Plan, error)
	Tasks() []string
}

func selectPlans(ctx context.Context, src planSource, tasks []string) ([]entity.Plan, error) {
	if len(tasks) == 0 {
		tasks = src.Tasks()
	}
	plans := make([]entity.Plan, 0, len(tasks))
	for _, task := range tasks {
		p, err := src.Plan(ctx, task)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	if len(plans) == 0 {
		return nil, errors.New("no plans to run")
	}
	return plans, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log output.LoggerPort) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", "error", err)
		}
	}()
	log.Info("Serving metrics", "addr", addr)
	return srv
}

// printResults writes one block per run and returns how many runs failed.
func printResults(w io.Writer, results []*orchestrator.RunResult) int {
	failed := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s (%s)\n", r.Task, r.RunID)
		if o := r.Outcome; o != nil {
			fmt.Fprintf(w, "  termination: %s\n", o.Termination)
			fmt.Fprintf(w, "  actions:     %d/%d (failed steps: %d)\n", o.CommittedActions, o.ActionBudget, o.FailedSteps())
			fmt.Fprintf(w, "  states:      %d\n", len(o.States))
			if o.FinalURL != "" {
				fmt.Fprintf(w, "  final url:   %s\n", o.FinalURL)
			}
			if o.AbortReason != "" {
				fmt.Fprintf(w, "  abort:       %s\n", o.AbortReason)
			}
		}
		if r.Location != "" {
			fmt.Fprintf(w, "  archived:    %s\n", r.Location)
		}
		fmt.Fprintf(w, "  duration:    %s\n", r.Duration.Round(time.Millisecond))
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "  error:       %v\n", r.Err)
		}
	}
	return failed
}
