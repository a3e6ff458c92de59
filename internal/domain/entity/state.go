package entity

import "time"

type Significance string

const (
	SignificanceCritical   Significance = "critical"
	SignificanceSupporting Significance = "supporting"
	SignificanceOptional   Significance = "optional"
)

func (s Significance) Valid() bool {
	switch s {
	case SignificanceCritical, SignificanceSupporting, SignificanceOptional:
		return true
	}
	return false
}

type StateSignature struct {
	Hash       string   `json:"hash"`
	URL        string   `json:"url"`
	Identities []string `json:"-"`
	// Structure holds the role+name keys alone, so value and flag changes
	// can be told apart from structural ones.
	Structure []string `json:"-"`
	HasModal  bool     `json:"has_modal"`
	HasToast  bool     `json:"has_toast"`
}

func (s StateSignature) Empty() bool {
	return s.Hash == ""
}

type StateMetadata struct {
	Detections             Detections     `json:"detections"`
	RoleSummary            map[string]int `json:"role_summary"`
	NodeCount              int            `json:"node_count"`
	TimedOutWaitingForIdle bool           `json:"timed_out_waiting_for_idle,omitempty"`
	Significance           Significance   `json:"significance"`
	SignificanceConfidence float64        `json:"significance_confidence"`
	SignificanceReasoning  string         `json:"significance_reasoning,omitempty"`
	SignificanceSource     string         `json:"significance_source"`
	StepIndex              int            `json:"step_index"`
}

// UIState is one retained observation. It is immutable once the observer
// returns it.
type UIState struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	HasModal    bool              `json:"has_modal"`
	Action      string            `json:"action"`
	Screenshots map[string]string `json:"screenshots"`
	Metadata    StateMetadata     `json:"metadata"`
	Signature   StateSignature    `json:"signature"`
	CapturedAt  time.Time         `json:"captured_at"`
}
