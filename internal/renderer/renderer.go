package renderer

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// charWidthPx/charHeightPx approximate a monospace glyph's footprint at the
// default 14px font, used to size the browser viewport to the terminal grid.
const (
	charWidthPx  = 8.4
	charHeightPx = 17.0
)

// Renderer rasterises terminal screens to PNG using one pooled headless-Chrome
// tab, reinitialised lazily after a crash. Grounded on the teacher's
// core/internal/browser/manager.go, generalised from a per-call allocator to
// a long-lived pooled context (the spec requires reuse, not a fresh browser
// per screenshot).
type Renderer struct {
	remoteURL string

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewRenderer returns a Renderer. If remoteURL is empty, a local headless
// Chrome process is launched on first use; otherwise the renderer attaches
// to an existing browser via the Chrome DevTools Protocol.
func NewRenderer(remoteURL string) *Renderer {
	return &Renderer{remoteURL: remoteURL}
}

// ensureBrowser lazily creates the pooled allocator/browser context pair. The
// caller must hold r.mu.
func (r *Renderer) ensureBrowser(ctx context.Context) error {
	if r.browserCtx != nil {
		return nil
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if r.remoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, r.remoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("renderer: starting browser: %w", err)
	}

	r.allocCtx, r.allocCancel = allocCtx, allocCancel
	r.browserCtx, r.browserCancel = browserCtx, browserCancel
	return nil
}

// reset tears down the pooled browser; the next Render call reinitialises it.
// The caller must hold r.mu.
func (r *Renderer) reset() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx, r.browserCancel = nil, nil
	r.allocCtx, r.allocCancel = nil, nil
}

// Render rasterises a Screen's current cell grid to a PNG image sized to fit
// the grid exactly. On a crashed tab (a failing chromedp.Run) the pooled
// browser is torn down and the render retried once against a fresh one.
func (r *Renderer) Render(ctx context.Context, screen *Screen, fontSize int) ([]byte, error) {
	if fontSize <= 0 {
		fontSize = 14
	}
	rows, cols := screen.Size()
	grid := screen.Cells()
	page := buildHTML(grid, fontSize)
	dataURL := "data:text/html," + url.PathEscape(page)

	width := int(float64(cols) * charWidthPx * float64(fontSize) / 14.0)
	height := int(float64(rows) * charHeightPx * float64(fontSize) / 14.0)

	png, err := r.runScreenshot(ctx, dataURL, width, height)
	if err != nil {
		r.mu.Lock()
		r.reset()
		r.mu.Unlock()
		png, err = r.runScreenshot(ctx, dataURL, width, height)
		if err != nil {
			return nil, fmt.Errorf("renderer: screenshot after browser restart: %w", err)
		}
	}
	return png, nil
}

func (r *Renderer) runScreenshot(ctx context.Context, dataURL string, width, height int) ([]byte, error) {
	r.mu.Lock()
	if err := r.ensureBrowser(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	browserCtx := r.browserCtx
	r.mu.Unlock()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var buf []byte
	err := chromedp.Run(timeoutCtx,
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("#term"),
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("renderer: chromedp run: %w", err)
	}
	return buf, nil
}

// Close releases the pooled browser.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}
