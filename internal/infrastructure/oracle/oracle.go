// Package oracle implements the vision and significance oracles on top of a
// multimodal chat model.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/prompts"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	_ output.VisionOracle       = (*Oracle)(nil)
	_ output.SignificanceOracle = (*Oracle)(nil)
)

type Config struct {
	// RPS bounds requests per second across both oracles; zero disables
	// the limiter.
	RPS       float64
	Burst     int
	MaxTokens int
}

func DefaultConfig() Config {
	return Config{
		RPS:       1,
		Burst:     1,
		MaxTokens: 300,
	}
}

// Oracle shares one model and one rate limiter between locating elements
// and labelling states.
type Oracle struct {
	llm     output.LLMPort
	limiter *rate.Limiter
	cfg     Config
	logger  output.LoggerPort
}

func New(llm output.LLMPort, cfg Config, logger output.LoggerPort) *Oracle {
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Oracle{
		llm:     llm,
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		logger:  logger,
	}
}

type locateResponse struct {
	Found      bool    `json:"found"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (o *Oracle) Locate(ctx context.Context, req output.LocateRequest) (*output.Location, error) {
	prompt, err := prompts.GenerateLocatePrompt(prompts.LocatePrompt, prompts.LocatePromptData{
		Description: req.Description,
		Action:      req.Action,
		Width:       req.Width,
		Height:      req.Height,
	})
	if err != nil {
		return nil, err
	}

	var resp locateResponse
	if err := o.ask(ctx, prompt, "Locate: "+req.Description, req.Screenshot, req.Format, &resp); err != nil {
		return nil, err
	}

	loc := &output.Location{
		Found:      resp.Found,
		X:          resp.X,
		Y:          resp.Y,
		Confidence: clamp(resp.Confidence),
		Reasoning:  resp.Reasoning,
	}
	if loc.Found && !inside(loc, req.Width, req.Height) {
		o.logger.Warn("Vision oracle answered outside the image", "x", loc.X, "y", loc.Y)
		loc.Found = false
		loc.Confidence = 0
	}

	o.logger.Debug("Vision oracle answered",
		"found", loc.Found,
		"confidence", loc.Confidence,
		"reasoning", loc.Reasoning,
	)
	return loc, nil
}

type classifyResponse struct {
	Significance string  `json:"significance"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

func (o *Oracle) Classify(ctx context.Context, req output.ClassifyRequest) (*output.Classification, error) {
	prompt, err := prompts.GenerateClassifyPrompt(prompts.ClassifyPrompt, prompts.ClassifyPromptData{
		Task:      req.Task,
		URL:       req.URL,
		HasModal:  req.HasModal,
		HasToast:  req.HasToast,
		FormValid: req.FormValid,
	})
	if err != nil {
		return nil, err
	}

	var resp classifyResponse
	if err := o.ask(ctx, prompt, "Classify this state.", req.Screenshot, req.Format, &resp); err != nil {
		return nil, err
	}

	label := entity.Significance(strings.ToLower(strings.TrimSpace(resp.Significance)))
	if !label.Valid() {
		return nil, fmt.Errorf("%w: unknown significance %q", entity.ErrOracleUnavailable, resp.Significance)
	}

	return &output.Classification{
		Significance: label,
		Confidence:   clamp(resp.Confidence),
		Reasoning:    resp.Reasoning,
	}, nil
}

// ask waits for the limiter, sends the system prompt plus one image and
// decodes the JSON object found in the answer into v.
func (o *Oracle) ask(ctx context.Context, system, user string, image []byte, format string, v any) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", entity.ErrOracleUnavailable, err)
	}

	msg := entity.Message{Role: entity.RoleUser, Content: user}
	if len(image) > 0 {
		msg.Images = []entity.Image{{Data: image, Format: format}}
	}

	resp, err := o.llm.Chat(ctx, output.ChatRequest{
		Messages: []entity.Message{
			{Role: entity.RoleSystem, Content: system},
			msg,
		},
		Temperature: 0,
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", entity.ErrOracleUnavailable, err)
	}

	if err := parseJSON(resp.Message.Content, v); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrOracleUnavailable, err)
	}
	return nil
}

var errNoJSON = errors.New("no JSON found in response")

// parseJSON tolerates prose or code fences around the object.
func parseJSON(response string, v any) error {
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return errNoJSON
	}

	if err := json.Unmarshal([]byte(response[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func inside(loc *output.Location, width, height int) bool {
	if width <= 0 || height <= 0 {
		return loc.X >= 0 && loc.Y >= 0
	}
	return loc.X >= 0 && loc.Y >= 0 && loc.X <= float64(width) && loc.Y <= float64(height)
}
