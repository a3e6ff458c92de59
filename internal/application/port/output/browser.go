package output

import (
	"context"

	"browser-observer/internal/domain/entity"
)

type BrowserPort interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// FindCandidates lists elements matching one strategy query. It never
	// filters by visibility; the resolver does that.
	FindCandidates(ctx context.Context, query entity.Query) ([]entity.Candidate, error)
	Click(ctx context.Context, handle string) error
	Fill(ctx context.Context, handle, text string) error
	Submit(ctx context.Context, handle string) error
	Scroll(ctx context.Context, direction string) error

	// ClickAt takes pixel coordinates of the most recent Screenshot image.
	ClickAt(ctx context.Context, x, y float64) error
	InsertText(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error

	RoleTree(ctx context.Context) (*entity.RoleTreeSnapshot, error)
	DOMSignals(ctx context.Context) (entity.DOMSignals, error)
	Screenshot(ctx context.Context, viewport entity.Viewport) (*entity.Screenshot, error)
	FocusScreenshot(ctx context.Context) (*entity.Screenshot, error)

	Close()
}

// BrowserFactory opens an isolated session for one workflow run.
type BrowserFactory interface {
	Open(ctx context.Context) (BrowserPort, error)
}
