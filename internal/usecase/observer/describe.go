package observer

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"browser-observer/internal/domain/entity"
)

// Describe renders a short human-readable summary of a captured page, for
// example "Python page | Dialog open | Structure changed (0.83)".
func Describe(rawURL string, d entity.Detections) string {
	parts := []string{pageName(rawURL) + " page"}

	if d.Present(entity.DetectionModal) {
		parts = append(parts, "Dialog open")
	}
	if d.Present(entity.DetectionToast) {
		parts = append(parts, "Toast visible")
	}
	if d.Present(entity.DetectionFormValidity) {
		parts = append(parts, "Form valid")
	}
	if d.Present(entity.DetectionAsyncLoad) {
		parts = append(parts, "Loading")
	}
	if r, ok := d.Get(entity.DetectionStructuralDiff); ok && r.Present {
		parts = append(parts, fmt.Sprintf("Structure changed (%.2f)", r.Score))
	}
	return strings.Join(parts, " | ")
}

func pageName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		if rawURL == "" {
			return "Blank"
		}
		return rawURL
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return u.Host
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return strings.ReplaceAll(base, "_", " ")
}
