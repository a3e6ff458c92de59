package entity

type DetectionKind string

const (
	DetectionModal          DetectionKind = "modal"
	DetectionToast          DetectionKind = "toast"
	DetectionFormValidity   DetectionKind = "form_validity"
	DetectionAsyncLoad      DetectionKind = "async_load"
	DetectionStructuralDiff DetectionKind = "structural_diff"
)

type DetectionResult struct {
	Kind    DetectionKind `json:"kind"`
	Present bool          `json:"present"`
	Score   float64       `json:"score"`
}

type Detections []DetectionResult

func (d Detections) Present(kind DetectionKind) bool {
	for _, r := range d {
		if r.Kind == kind {
			return r.Present
		}
	}
	return false
}

func (d Detections) Get(kind DetectionKind) (DetectionResult, bool) {
	for _, r := range d {
		if r.Kind == kind {
			return r, true
		}
	}
	return DetectionResult{}, false
}
