package output

import (
	"context"

	"browser-observer/internal/domain/entity"
)

type LocateRequest struct {
	Screenshot []byte
	Format     string
	// Width and Height are the image dimensions; coordinates come back in
	// the same pixel space.
	Width       int
	Height      int
	Description string
	Action      entity.ActionType
}

type Location struct {
	Found      bool
	X          float64
	Y          float64
	Confidence float64
	Reasoning  string
}

// VisionOracle locates an element from a screenshot when every selector
// strategy has failed.
type VisionOracle interface {
	Locate(ctx context.Context, req LocateRequest) (*Location, error)
}

type ClassifyRequest struct {
	Screenshot []byte
	Format     string
	Task       string
	URL        string
	HasModal   bool
	HasToast   bool
	FormValid  *bool
}

type Classification struct {
	Significance entity.Significance
	Confidence   float64
	Reasoning    string
}

type SignificanceOracle interface {
	Classify(ctx context.Context, req ClassifyRequest) (*Classification, error)
}
