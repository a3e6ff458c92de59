package dedup

import "browser-observer/internal/domain/entity"

const (
	DefaultWindowSize = 5
	DefaultThreshold  = 0.98
)

// Window holds the last N retained signatures of one run.
type Window struct {
	size      int
	threshold float64
	recent    []entity.StateSignature
}

func NewWindow(size int, threshold float64) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Window{
		size:      size,
		threshold: threshold,
		recent:    make([]entity.StateSignature, 0, size),
	}
}

// ShouldRetain rejects exact repeats and near-duplicates of anything still
// in the window.
func (w *Window) ShouldRetain(sig entity.StateSignature) bool {
	for _, prev := range w.recent {
		if prev.Hash == sig.Hash {
			return false
		}
		if Similarity(prev, sig) >= w.threshold {
			return false
		}
	}
	return true
}

func (w *Window) Push(sig entity.StateSignature) {
	if len(w.recent) == w.size {
		copy(w.recent, w.recent[1:])
		w.recent = w.recent[:w.size-1]
	}
	w.recent = append(w.recent, sig)
}

func (w *Window) Len() int {
	return len(w.recent)
}
