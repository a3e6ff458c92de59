package rod

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"browser-observer/internal/application/port/output"
	"browser-observer/internal/domain/entity"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	jsoniter "github.com/json-iterator/go"
	"github.com/ysmood/gson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	_ output.BrowserPort    = (*BrowserAdapter)(nil)
	_ output.BrowserFactory = (*Factory)(nil)
)

// BrowserAdapter drives one browser process with a single tab. Element
// handles are valid until the next FindCandidates or Navigate call.
type BrowserAdapter struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	cfg      BrowserConfig
	viewport entity.Viewport

	mu      sync.Mutex
	handles map[string]*rod.Element
	nextID  int
	// shotScale maps image pixels of the last default-viewport screenshot
	// back to CSS pixels for ClickAt.
	shotScale float64
}

type BrowserConfig struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
	DevTools   bool
	// Bin overrides the browser binary; empty lets the launcher find or
	// download one.
	Bin      string
	Viewport entity.Viewport
	// IdleWait bounds the network idle wait after navigation.
	IdleWait time.Duration
	MaxWidth int
	Quality  int
	// FocusPadding is added around a dialog in CSS pixels.
	FocusPadding    float64
	RedactSelectors []string
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Headless:     true,
		Timeout:      10 * time.Second,
		NoSandbox:    true,
		Viewport:     entity.ViewportDesktop,
		IdleWait:     2 * time.Second,
		MaxWidth:     1024,
		Quality:      75,
		FocusPadding: 16,
	}
}

func NewBrowserAdapter(ctx context.Context, cfg BrowserConfig) (*BrowserAdapter, error) {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(controlURL).
		SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	b := &BrowserAdapter{
		browser:   browser,
		launcher:  l,
		page:      page,
		cfg:       cfg,
		viewport:  cfg.Viewport,
		handles:   make(map[string]*rod.Element),
		shotScale: 1,
	}
	if b.viewport.Width == 0 {
		b.viewport = entity.ViewportDesktop
	}
	if err := setViewport(page, b.viewport); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *BrowserAdapter) pageCtx(ctx context.Context) *rod.Page {
	return b.page.Context(ctx).Timeout(b.cfg.Timeout)
}

func (b *BrowserAdapter) Navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%w: %q", entity.ErrInvalidURL, rawURL)
	}

	b.resetHandles()
	page := b.pageCtx(ctx)
	if err := page.Navigate(rawURL); err != nil {
		return classify(fmt.Errorf("navigation failed: %w", err))
	}
	if err := page.WaitLoad(); err != nil {
		return classify(fmt.Errorf("wait load failed: %w", err))
	}
	_ = b.page.Context(ctx).WaitIdle(b.cfg.IdleWait)
	return nil
}

func (b *BrowserAdapter) CurrentURL(ctx context.Context) (string, error) {
	info, err := b.pageCtx(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info failed: %w", err)
	}
	return info.URL, nil
}

func (b *BrowserAdapter) FindCandidates(ctx context.Context, q entity.Query) ([]entity.Candidate, error) {
	page := b.pageCtx(ctx)

	if q.Strategy == entity.StrategyCSS {
		res, err := page.Eval(validSelectorJS, q.Value)
		if err != nil {
			return nil, classify(err)
		}
		if !res.Value.Bool() {
			return nil, fmt.Errorf("%w: %q", entity.ErrInvalidSelector, q.Value)
		}
	}

	els, err := page.ElementsByJS(rod.Eval(findElementsJS, string(q.Strategy), q.Role, q.Name, q.Value))
	if err != nil {
		return nil, classify(fmt.Errorf("find %s candidates: %w", q.Strategy, err))
	}

	b.resetHandles()
	out := make([]entity.Candidate, 0, len(els))
	for _, el := range els {
		var info struct {
			Visible bool        `json:"visible"`
			Enabled bool        `json:"enabled"`
			Rect    entity.Rect `json:"rect"`
		}
		if err := evalJSON(el.Context(ctx).Timeout(b.cfg.Timeout), candidateInfoJS, &info); err != nil {
			continue
		}
		out = append(out, entity.Candidate{
			Handle:  b.register(el),
			Visible: info.Visible,
			Enabled: info.Enabled,
			Rect:    info.Rect,
		})
	}
	return out, nil
}

func (b *BrowserAdapter) Click(ctx context.Context, handle string) error {
	el, err := b.element(ctx, handle)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return classify(fmt.Errorf("scroll into view failed: %w", err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(fmt.Errorf("click failed: %w", err))
	}
	b.settle(ctx)
	return nil
}

func (b *BrowserAdapter) Fill(ctx context.Context, handle, text string) error {
	el, err := b.element(ctx, handle)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return classify(fmt.Errorf("select text failed: %w", err))
	}
	if err := el.Input(text); err != nil {
		return classify(fmt.Errorf("input failed: %w", err))
	}
	return nil
}

func (b *BrowserAdapter) Submit(ctx context.Context, handle string) error {
	el, err := b.element(ctx, handle)
	if err != nil {
		return err
	}
	res, err := el.Eval(submitJS)
	if err != nil {
		return classify(fmt.Errorf("submit failed: %w", err))
	}

	switch res.Value.Str() {
	case "click":
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return classify(fmt.Errorf("submit click failed: %w", err))
		}
	case "enter":
		if err := el.Focus(); err != nil {
			return classify(fmt.Errorf("focus failed: %w", err))
		}
		if err := b.page.Context(ctx).Keyboard.Type(input.Enter); err != nil {
			return classify(fmt.Errorf("press enter failed: %w", err))
		}
	}
	b.settle(ctx)
	return nil
}

func (b *BrowserAdapter) Scroll(ctx context.Context, direction string) error {
	direction = strings.ToLower(strings.TrimSpace(direction))
	res, err := b.pageCtx(ctx).Eval(scrollJS, direction)
	if err != nil {
		return classify(fmt.Errorf("scroll failed: %w", err))
	}
	if !res.Value.Bool() {
		return fmt.Errorf("unknown scroll direction: %s", direction)
	}
	b.settle(ctx)
	return nil
}

func (b *BrowserAdapter) ClickAt(ctx context.Context, x, y float64) error {
	b.mu.Lock()
	scale := b.shotScale
	b.mu.Unlock()

	page := b.pageCtx(ctx)
	if err := page.Mouse.MoveTo(proto.Point{X: x * scale, Y: y * scale}); err != nil {
		return classify(fmt.Errorf("mouse move failed: %w", err))
	}
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(fmt.Errorf("mouse click failed: %w", err))
	}
	b.settle(ctx)
	return nil
}

func (b *BrowserAdapter) InsertText(ctx context.Context, text string) error {
	if err := b.pageCtx(ctx).InsertText(text); err != nil {
		return classify(fmt.Errorf("insert text failed: %w", err))
	}
	return nil
}

func (b *BrowserAdapter) PressEnter(ctx context.Context) error {
	if err := b.pageCtx(ctx).Keyboard.Type(input.Enter); err != nil {
		return classify(fmt.Errorf("failed to press Enter: %w", err))
	}
	b.settle(ctx)
	return nil
}

func (b *BrowserAdapter) RoleTree(ctx context.Context) (*entity.RoleTreeSnapshot, error) {
	page := b.pageCtx(ctx)

	var nodes []entity.RoleNode
	if err := evalJSON(page, roleTreeJS, &nodes, entity.MaxRoleNodes); err != nil {
		return nil, fmt.Errorf("role tree failed: %w", err)
	}
	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}
	return &entity.RoleTreeSnapshot{
		URL:     info.URL,
		Nodes:   nodes,
		TakenAt: time.Now(),
	}, nil
}

func (b *BrowserAdapter) DOMSignals(ctx context.Context) (entity.DOMSignals, error) {
	var signals entity.DOMSignals
	if err := evalJSON(b.pageCtx(ctx), domSignalsJS, &signals); err != nil {
		return entity.DOMSignals{}, fmt.Errorf("dom signals failed: %w", err)
	}
	return signals, nil
}

// Screenshot captures the visible area at vp and restores the session
// viewport afterwards.
func (b *BrowserAdapter) Screenshot(ctx context.Context, vp entity.Viewport) (*entity.Screenshot, error) {
	page := b.pageCtx(ctx)

	if vp.Width > 0 && vp != b.viewport {
		if err := setViewport(page, vp); err != nil {
			return nil, err
		}
		defer func() {
			_ = setViewport(b.page.Context(context.WithoutCancel(ctx)).Timeout(b.cfg.Timeout), b.viewport)
		}()
		_ = page.WaitRepaint()
	}

	raw, err := capture(page)
	if err != nil {
		return nil, err
	}

	var redaction struct {
		Boxes []entity.Rect `json:"boxes"`
		Width float64       `json:"width"`
	}
	if len(b.cfg.RedactSelectors) > 0 {
		if err := evalJSON(page, redactionJS, &redaction, b.cfg.RedactSelectors); err != nil {
			return nil, fmt.Errorf("redaction lookup failed: %w", err)
		}
	}

	shot, err := processScreenshot(raw, redaction.Boxes, imageOptions{
		Scale:    imageScale(raw, redaction.Width, vp, b.viewport),
		MaxWidth: b.cfg.MaxWidth,
		Quality:  b.cfg.Quality,
	})
	if err != nil {
		return nil, err
	}
	shot.Viewport = vp.Name

	if vp.Width == 0 || vp == b.viewport {
		b.mu.Lock()
		b.shotScale = float64(b.viewport.Width) / float64(shot.Width)
		b.mu.Unlock()
	}
	return shot, nil
}

// FocusScreenshot crops the current viewport around the first visible
// dialog.
func (b *BrowserAdapter) FocusScreenshot(ctx context.Context) (*entity.Screenshot, error) {
	page := b.pageCtx(ctx)

	var dialog struct {
		Found bool        `json:"found"`
		Rect  entity.Rect `json:"rect"`
		Width float64     `json:"width"`
	}
	if err := evalJSON(page, dialogRectJS, &dialog); err != nil {
		return nil, fmt.Errorf("dialog lookup failed: %w", err)
	}
	if !dialog.Found {
		return nil, errors.New("no visible dialog to focus on")
	}

	raw, err := capture(page)
	if err != nil {
		return nil, err
	}

	shot, err := cropScreenshot(raw, dialog.Rect, b.cfg.FocusPadding, imageOptions{
		Scale:    imageScale(raw, dialog.Width, b.viewport, b.viewport),
		MaxWidth: b.cfg.MaxWidth,
		Quality:  b.cfg.Quality,
	})
	if err != nil {
		return nil, err
	}
	shot.Viewport = entity.ViewportFocus
	return shot, nil
}

func (b *BrowserAdapter) Close() {
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}

func (b *BrowserAdapter) register(el *rod.Element) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	h := "el-" + strconv.Itoa(b.nextID)
	b.handles[h] = el
	return h
}

func (b *BrowserAdapter) resetHandles() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.handles)
}

func (b *BrowserAdapter) element(ctx context.Context, handle string) (*rod.Element, error) {
	b.mu.Lock()
	el, ok := b.handles[handle]
	b.mu.Unlock()
	if !ok {
		// Handles die with every lookup or navigation; the caller re-resolves.
		return nil, entity.Transient(fmt.Errorf("unknown element handle %q", handle))
	}
	return el.Context(ctx).Timeout(b.cfg.Timeout), nil
}

// settle gives the page a short idle window after an interaction. Its
// error is ignored; the observer does the real waiting.
func (b *BrowserAdapter) settle(ctx context.Context) {
	_ = b.page.Context(ctx).WaitIdle(b.cfg.IdleWait / 2)
}

func setViewport(page *rod.Page, vp entity.Viewport) error {
	err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
		Mobile:            vp.Width < 600,
	})
	if err != nil {
		return fmt.Errorf("set viewport %s failed: %w", vp.Name, err)
	}
	return nil
}

// imageScale returns image pixels per CSS pixel. The in-page width wins
// when known; otherwise the requested viewport width is used.
func imageScale(raw []byte, cssWidth float64, vp, fallback entity.Viewport) float64 {
	if cssWidth <= 0 {
		cssWidth = float64(vp.Width)
	}
	if cssWidth <= 0 {
		cssWidth = float64(fallback.Width)
	}
	w := imageWidth(raw)
	if w <= 0 || cssWidth <= 0 {
		return 1
	}
	return float64(w) / cssWidth
}

// capture grabs the visible area near-lossless; redaction and the final
// encoding happen afterwards.
func capture(page *rod.Page) ([]byte, error) {
	raw, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(95),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return raw, nil
}

// evaluator is satisfied by both *rod.Page and *rod.Element.
type evaluator interface {
	Eval(js string, args ...interface{}) (*proto.RuntimeRemoteObject, error)
}

// evalJSON runs a function that returns JSON.stringify output and decodes
// it into v.
func evalJSON(target evaluator, js string, v any, args ...any) error {
	res, err := target.Eval(js, args...)
	if err != nil {
		return classify(err)
	}
	return json.Unmarshal([]byte(res.Value.Str()), v)
}

// classify marks failures worth retrying: timeouts, navigation errors and
// elements that are momentarily covered, detached or not interactable.
func classify(err error) error {
	if err == nil || errors.Is(err, entity.ErrTransientAction) {
		return err
	}

	var (
		navErr       *rod.NavigationError
		notInteract  *rod.NotInteractableError
		invisible    *rod.InvisibleShapeError
		covered      *rod.CoveredError
		objNotFound  *rod.ObjectNotFoundError
		cdpErr       *cdp.Error
		transientCDP bool
	)
	if errors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message)
		transientCDP = strings.Contains(msg, "detached") ||
			strings.Contains(msg, "cannot find context") ||
			strings.Contains(msg, "could not compute box model")
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &navErr),
		errors.As(err, &notInteract),
		errors.As(err, &invisible),
		errors.As(err, &covered),
		errors.As(err, &objNotFound),
		transientCDP:
		return entity.Transient(err)
	}
	return err
}

// Factory launches an isolated browser per workflow run.
type Factory struct {
	cfg BrowserConfig
}

func NewFactory(cfg BrowserConfig) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) Open(ctx context.Context) (output.BrowserPort, error) {
	return NewBrowserAdapter(ctx, f.cfg)
}
