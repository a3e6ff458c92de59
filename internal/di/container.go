package di

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/application/service"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/browser/rod"
	"browser-observer/internal/infrastructure/failurelog"
	"browser-observer/internal/infrastructure/llm/openrouter"
	"browser-observer/internal/infrastructure/logger"
	"browser-observer/internal/infrastructure/metrics"
	"browser-observer/internal/infrastructure/oracle"
	"browser-observer/internal/infrastructure/sink"
	"browser-observer/internal/usecase/archivist"
	"browser-observer/internal/usecase/constitution"
	"browser-observer/internal/usecase/orchestrator"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const FailureLogFile = "failures.jsonl"

type Container struct {
	Logger       output.LoggerPort
	Registry     *prometheus.Registry
	Metrics      output.MetricsPort
	Failures     *failurelog.JSONL
	Dataset      *sink.Dataset
	Gate         *constitution.Gate
	Orchestrator *orchestrator.UseCase
}

type Config struct {
	App string

	ActionBudget   int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Parallelism    int

	IdleTimeout       time.Duration
	PollInterval      time.Duration
	RoleDiffThreshold float64
	DedupWindow       int
	DedupThreshold    float64
	MultiViewport     bool

	VisionEnabled    bool
	VisionConfidence float64
	OracleTimeout    time.Duration
	OracleRPS        float64

	OpenRouterAPIKey string
	OpenRouterModel  string

	BrowserHeadless bool
	RedactSelectors []string

	OutputDir string
	LogLevel  string
	LogFile   string
}

// ConfigFromEnv reads every setting from env, falling back to the package
// defaults of the component that owns it.
func ConfigFromEnv(env output.ConfigPort) Config {
	nav := orchestrator.DefaultConfig()
	return Config{
		App: env.Get("APP_NAME"),

		ActionBudget:   env.GetInt("ACTION_BUDGET", nav.Navigator.ActionBudget),
		MaxAttempts:    env.GetInt("MAX_ATTEMPTS", nav.Navigator.MaxAttempts),
		RetryBaseDelay: env.GetDuration("RETRY_BASE_DELAY", nav.Navigator.RetryBaseDelay),
		Parallelism:    env.GetInt("PARALLELISM", nav.Parallelism),

		IdleTimeout:       env.GetDuration("IDLE_TIMEOUT", nav.Observer.IdleTimeout),
		PollInterval:      env.GetDuration("POLL_INTERVAL", nav.Observer.PollInterval),
		RoleDiffThreshold: env.GetFloat("ROLE_DIFF_THRESHOLD", nav.Observer.StructuralThreshold),
		DedupWindow:       env.GetInt("DEDUP_WINDOW", nav.Observer.DedupWindow),
		DedupThreshold:    env.GetFloat("DEDUP_THRESHOLD", nav.Observer.DedupThreshold),
		MultiViewport:     env.GetBool("MULTI_VIEWPORT", false),

		VisionEnabled:    env.GetBool("VISION_ENABLED", false),
		VisionConfidence: env.GetFloat("VISION_CONFIDENCE", nav.Navigator.VisionConfidence),
		OracleTimeout:    env.GetDuration("ORACLE_TIMEOUT", nav.Observer.OracleTimeout),
		OracleRPS:        env.GetFloat("ORACLE_RPS", oracle.DefaultConfig().RPS),

		OpenRouterAPIKey: env.Get("OPENROUTER_API_KEY"),
		OpenRouterModel:  env.Get("OPENROUTER_MODEL_NAME"),

		BrowserHeadless: env.GetBool("BROWSER_HEADLESS", true),
		RedactSelectors: splitList(env.Get("REDACT_SELECTORS")),

		OutputDir: env.GetWithDefault("OUTPUT_DIR", "datasets"),
		LogLevel:  env.GetWithDefault("LOG_LEVEL", "info"),
		LogFile:   env.Get("LOG_FILE"),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.File = cfg.LogFile
	log, err := logger.NewLoggerAdapter(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{Logger: log}
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	c.Failures, err = failurelog.Open(filepath.Join(cfg.OutputDir, FailureLogFile))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}

	c.Dataset, err = sink.Open(ctx, cfg.OutputDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	registry := service.NewConstitutionRegistry(constitution.Defaults()...)
	c.Gate = constitution.NewGate(registry, c.Failures, c.Metrics, log)

	deps := orchestrator.Dependencies{
		Browsers:  rod.NewFactory(browserConfig(cfg)),
		Store:     sink.NewFileStore(cfg.OutputDir),
		Gate:      c.Gate,
		Archivist: archivist.New(c.Dataset, c.Gate, log),
		Logger:    log,
		Metrics:   c.Metrics,
	}

	// The oracle fields stay nil interfaces unless configured; the
	// navigator and observer check them for nil.
	if cfg.OpenRouterAPIKey != "" && cfg.OpenRouterModel != "" {
		llmCfg := openrouter.DefaultConfig(cfg.OpenRouterAPIKey, cfg.OpenRouterModel)
		llmCfg.Logger = log
		oracleCfg := oracle.DefaultConfig()
		oracleCfg.RPS = cfg.OracleRPS
		o := oracle.New(openrouter.NewOpenRouterAdapter(llmCfg), oracleCfg, log)

		deps.Significance = o
		if cfg.VisionEnabled {
			deps.Vision = o
		}
	} else {
		log.Info("No oracle configured, using heuristic significance")
	}

	c.Orchestrator = orchestrator.New(orchestratorConfig(cfg), deps)
	return c, nil
}

func browserConfig(cfg Config) rod.BrowserConfig {
	bc := rod.DefaultConfig()
	bc.Headless = cfg.BrowserHeadless
	bc.RedactSelectors = cfg.RedactSelectors
	return bc
}

func orchestratorConfig(cfg Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.App = cfg.App
	if cfg.Parallelism > 0 {
		oc.Parallelism = cfg.Parallelism
	}

	oc.Navigator.ActionBudget = cfg.ActionBudget
	oc.Navigator.MaxAttempts = cfg.MaxAttempts
	oc.Navigator.RetryBaseDelay = cfg.RetryBaseDelay
	oc.Navigator.VisionConfidence = cfg.VisionConfidence
	oc.Navigator.OracleTimeout = cfg.OracleTimeout

	oc.Observer.IdleTimeout = cfg.IdleTimeout
	oc.Observer.PollInterval = cfg.PollInterval
	oc.Observer.StructuralThreshold = cfg.RoleDiffThreshold
	oc.Observer.DedupWindow = cfg.DedupWindow
	oc.Observer.DedupThreshold = cfg.DedupThreshold
	oc.Observer.OracleTimeout = cfg.OracleTimeout
	if cfg.MultiViewport {
		oc.Observer.Viewports = []entity.Viewport{entity.ViewportDesktop, entity.ViewportTablet, entity.ViewportMobile}
	}
	return oc
}

func (c *Container) Close() {
	if c.Dataset != nil {
		if err := c.Dataset.Close(); err != nil {
			c.Logger.Warn("Failed to close dataset", "error", err)
		}
	}
	if c.Failures != nil {
		if err := c.Failures.Close(); err != nil {
			c.Logger.Warn("Failed to close failure log", "error", err)
		}
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
