package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"
)

var _ output.ScreenshotStore = (*FileStore)(nil)

// FileStore keeps screenshots at root/<run id>/screenshots/. Refs are
// relative to root so a dataset directory can be moved as a whole.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Save(_ context.Context, runID string, index int, shot *entity.Screenshot) (string, error) {
	if shot == nil || len(shot.Data) == 0 {
		return "", errors.New("save screenshot: empty image")
	}
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("save screenshot: bad run id %q", runID)
	}

	viewport := shot.Viewport
	if viewport == "" {
		viewport = entity.ViewportDesktop.Name
	}
	ext := shot.Format
	if ext == "" {
		ext = "png"
	}

	ref := filepath.Join(runID, "screenshots", fmt.Sprintf("%03d_%s.%s", index, viewport, ext))
	path := filepath.Join(s.root, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, shot.Data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return filepath.ToSlash(ref), nil
}

// Path resolves a ref returned by Save.
func (s *FileStore) Path(ref string) string {
	return filepath.Join(s.root, filepath.FromSlash(ref))
}
