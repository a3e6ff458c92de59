package detector

import (
	"sort"

	"browser-observer/internal/domain/entity"
)

// DefaultStructuralThreshold flags a structural change when less than 20%
// of the visible role structure survived.
const DefaultStructuralThreshold = 0.2

// Detector turns the current snapshot, the previous one and extra DOM
// signals into one signal. prev is nil on the first observation of a run.
type Detector interface {
	Kind() entity.DetectionKind
	Detect(cur, prev *entity.RoleTreeSnapshot, signals entity.DOMSignals) entity.DetectionResult
}

type Config struct {
	StructuralThreshold float64
	// ReverseFormTransition fires the form detector on valid->invalid
	// instead of invalid->valid.
	ReverseFormTransition bool
}

func DefaultConfig() Config {
	return Config{StructuralThreshold: DefaultStructuralThreshold}
}

// Bank is the closed set of detectors one run uses. It is not safe for
// concurrent use; each run owns its bank.
type Bank struct {
	detectors []Detector
}

func NewBank(cfg Config) *Bank {
	if cfg.StructuralThreshold <= 0 {
		cfg.StructuralThreshold = DefaultStructuralThreshold
	}
	return &Bank{
		detectors: []Detector{
			Modal{},
			Toast{},
			NewFormValidity(cfg.ReverseFormTransition),
			AsyncLoad{},
			StructuralDiff{Threshold: cfg.StructuralThreshold},
		},
	}
}

// Run fans out to every detector and returns results in fixed order.
func (b *Bank) Run(cur, prev *entity.RoleTreeSnapshot, signals entity.DOMSignals) entity.Detections {
	out := make(entity.Detections, 0, len(b.detectors))
	for _, d := range b.detectors {
		out = append(out, d.Detect(cur, prev, signals))
	}
	return out
}

type Modal struct{}

func (Modal) Kind() entity.DetectionKind { return entity.DetectionModal }

func (Modal) Detect(cur, _ *entity.RoleTreeSnapshot, _ entity.DOMSignals) entity.DetectionResult {
	present := false
	if cur != nil {
		for _, n := range cur.Nodes {
			if n.Role == "dialog" || n.Role == "alertdialog" || n.Flags.Modal {
				present = true
				break
			}
		}
	}
	return result(entity.DetectionModal, present)
}

type Toast struct{}

func (Toast) Kind() entity.DetectionKind { return entity.DetectionToast }

func (Toast) Detect(cur, _ *entity.RoleTreeSnapshot, signals entity.DOMSignals) entity.DetectionResult {
	present := signals.ToastHint || cur.HasRole("status", "alert")
	return result(entity.DetectionToast, present)
}

// FormValidity remembers the last validity bit per form and fires only on a
// transition, never on a steady state.
type FormValidity struct {
	reverse bool
	last    map[string]bool
}

func NewFormValidity(reverse bool) *FormValidity {
	return &FormValidity{reverse: reverse, last: make(map[string]bool)}
}

func (*FormValidity) Kind() entity.DetectionKind { return entity.DetectionFormValidity }

func (f *FormValidity) Detect(_, _ *entity.RoleTreeSnapshot, signals entity.DOMSignals) entity.DetectionResult {
	keys := make([]string, 0, len(signals.Forms))
	for k := range signals.Forms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fired := false
	for _, k := range keys {
		valid := signals.Forms[k]
		prev, seen := f.last[k]
		f.last[k] = valid
		if !seen || prev == valid {
			continue
		}
		if (!f.reverse && valid) || (f.reverse && !valid) {
			fired = true
		}
	}
	return result(entity.DetectionFormValidity, fired)
}

type AsyncLoad struct{}

func (AsyncLoad) Kind() entity.DetectionKind { return entity.DetectionAsyncLoad }

func (AsyncLoad) Detect(cur, _ *entity.RoleTreeSnapshot, signals entity.DOMSignals) entity.DetectionResult {
	present := signals.Busy
	if !present && cur != nil {
		for _, n := range cur.Nodes {
			if n.Flags.Busy || n.Role == "progressbar" {
				present = true
				break
			}
		}
	}
	return result(entity.DetectionAsyncLoad, present)
}

type StructuralDiff struct {
	Threshold float64
}

func (StructuralDiff) Kind() entity.DetectionKind { return entity.DetectionStructuralDiff }

// Detect scores 1 - Jaccard(prev, cur) over role+name identities. Identical
// sets are never a change, however far their rectangles moved.
func (s StructuralDiff) Detect(cur, prev *entity.RoleTreeSnapshot, _ entity.DOMSignals) entity.DetectionResult {
	if prev == nil || cur == nil {
		return entity.DetectionResult{Kind: entity.DetectionStructuralDiff}
	}
	sim := Jaccard(structuralKeys(prev), structuralKeys(cur))
	return entity.DetectionResult{
		Kind:    entity.DetectionStructuralDiff,
		Present: sim < s.Threshold,
		Score:   1 - sim,
	}
}

// Jaccard is |a∩b| / |a∪b|; two empty sets are identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func structuralKeys(s *entity.RoleTreeSnapshot) map[string]struct{} {
	out := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		out[n.StructuralKey()] = struct{}{}
	}
	return out
}

func result(kind entity.DetectionKind, present bool) entity.DetectionResult {
	r := entity.DetectionResult{Kind: kind, Present: present}
	if present {
		r.Score = 1
	}
	return r
}
