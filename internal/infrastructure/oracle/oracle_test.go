package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	answer string
	err    error
	calls  []output.ChatRequest
}

func (s *stubLLM) Chat(_ context.Context, req output.ChatRequest) (*output.ChatResponse, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &output.ChatResponse{Message: entity.Message{Role: entity.RoleAssistant, Content: s.answer}}, nil
}

func newOracle(llm output.LLMPort) *Oracle {
	cfg := DefaultConfig()
	cfg.RPS = 0
	return New(llm, cfg, logger.NewNop())
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		wantFound bool
		wantConf  float64
		wantX     float64
	}{
		{
			name:      "plain json",
			answer:    `{"found": true, "x": 412, "y": 88, "confidence": 0.91, "reasoning": "search field in header"}`,
			wantFound: true, wantConf: 0.91, wantX: 412,
		},
		{
			name:      "fenced with prose",
			answer:    "Sure.\n```json\n{\"found\": true, \"x\": 10, \"y\": 20, \"confidence\": 0.8}\n```",
			wantFound: true, wantConf: 0.8, wantX: 10,
		},
		{
			name:   "not found",
			answer: `{"found": false, "confidence": 0}`,
		},
		{
			name:     "outside image",
			answer:   `{"found": true, "x": 5000, "y": 20, "confidence": 0.9}`,
			wantConf: 0, wantX: 5000,
		},
		{
			name:      "confidence clamped",
			answer:    `{"found": true, "x": 1, "y": 1, "confidence": 7}`,
			wantFound: true, wantConf: 1, wantX: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{answer: tt.answer}
			loc, err := newOracle(llm).Locate(context.Background(), output.LocateRequest{
				Screenshot:  []byte("jpeg"),
				Format:      "jpeg",
				Width:       1024,
				Height:      640,
				Description: "searchbox[Search Wikipedia]",
				Action:      entity.ActionTypeText,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, loc.Found)
			assert.Equal(t, tt.wantConf, loc.Confidence)
			assert.Equal(t, tt.wantX, loc.X)
		})
	}
}

func TestLocate_SendsScreenshotAndPrompt(t *testing.T) {
	llm := &stubLLM{answer: `{"found": false}`}
	_, err := newOracle(llm).Locate(context.Background(), output.LocateRequest{
		Screenshot:  []byte("jpeg"),
		Format:      "jpeg",
		Width:       1024,
		Height:      640,
		Description: "button[Search]",
		Action:      entity.ActionClick,
	})
	require.NoError(t, err)

	require.Len(t, llm.calls, 1)
	msgs := llm.calls[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, entity.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "1024x640 pixels")
	assert.Contains(t, msgs[0].Content, "button[Search]")
	require.Len(t, msgs[1].Images, 1)
	assert.Equal(t, "jpeg", msgs[1].Images[0].Format)
	assert.Equal(t, float32(0), llm.calls[0].Temperature)
	assert.Equal(t, 300, llm.calls[0].MaxTokens)
}

func TestLocate_Failures(t *testing.T) {
	_, err := newOracle(&stubLLM{err: errors.New("connection reset")}).Locate(context.Background(), output.LocateRequest{})
	assert.ErrorIs(t, err, entity.ErrOracleUnavailable)
	assert.ErrorContains(t, err, "connection reset")

	_, err = newOracle(&stubLLM{answer: "I cannot see any button."}).Locate(context.Background(), output.LocateRequest{})
	assert.ErrorIs(t, err, entity.ErrOracleUnavailable)
	assert.ErrorIs(t, err, errNoJSON)
}

func TestClassify(t *testing.T) {
	valid := true
	llm := &stubLLM{answer: `{"significance": " Critical ", "confidence": 0.7, "reasoning": "search results"}`}

	c, err := newOracle(llm).Classify(context.Background(), output.ClassifyRequest{
		Screenshot: []byte("jpeg"),
		Format:     "jpeg",
		Task:       "search python",
		URL:        "https://en.wikipedia.org/wiki/Python",
		FormValid:  &valid,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.SignificanceCritical, c.Significance)
	assert.Equal(t, 0.7, c.Confidence)
	assert.Equal(t, "search results", c.Reasoning)

	system := llm.calls[0].Messages[0].Content
	assert.Contains(t, system, "search python")
	assert.Contains(t, system, "now valid: true")
}

func TestClassify_UnknownLabel(t *testing.T) {
	_, err := newOracle(&stubLLM{answer: `{"significance": "vital"}`}).Classify(context.Background(), output.ClassifyRequest{})
	assert.ErrorIs(t, err, entity.ErrOracleUnavailable)
}

func TestRateLimiter_RespectsContext(t *testing.T) {
	llm := &stubLLM{answer: `{"found": false}`}
	o := New(llm, Config{RPS: 0.001, Burst: 1}, logger.NewNop())

	_, err := o.Locate(context.Background(), output.LocateRequest{})
	require.NoError(t, err, "the first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = o.Locate(ctx, output.LocateRequest{})
	assert.ErrorIs(t, err, entity.ErrOracleUnavailable)
	assert.Len(t, llm.calls, 1, "the limited request never reaches the model")
}

func TestParseJSON(t *testing.T) {
	var v map[string]any
	assert.ErrorIs(t, parseJSON("", &v), errNoJSON)
	assert.ErrorIs(t, parseJSON("} backwards {", &v), errNoJSON)
	assert.Error(t, parseJSON("{not json}", &v))
	require.NoError(t, parseJSON(`noise {"a": 1} noise`, &v))
	assert.EqualValues(t, 1, v["a"])
}
