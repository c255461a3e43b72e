// Package autorefresh implements the bounded, cancel-and-replace screenshot
// edit loop described in Design Notes §9 ("ad-hoc setTimeout/setInterval
// trees... a cancellation-scoped timer set attached to PtySession"). One
// Controller is owned per PtySession.
package autorefresh

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Hooks are the session-specific operations the controller drives. None of
// them are called concurrently with each other for a given Controller.
type Hooks struct {
	// Hash returns a hash of the session's current terminal buffer.
	Hash func() string
	// LastHash returns the hash recorded for the message under edit.
	LastHash func() string
	// SetLastHash records the hash of the last successfully edited image.
	SetLastHash func(hash string)
	// Render produces a PNG for the session's current state.
	Render func(ctx context.Context) ([]byte, error)
	// Edit pushes png as the new content of the message under edit.
	Edit func(ctx context.Context, png []byte) error
}

// Controller owns one session's auto-refresh loop: a ticker bounded by
// maxCount ticks, each gated by a rate.Limiter. Each RequestRefresh starts a
// new run with its own limiter.
type Controller struct {
	interval time.Duration
	maxCount int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Controller that ticks at interval, for at most maxCount
// edits per request.
func New(interval time.Duration, maxCount int) *Controller {
	return &Controller{interval: interval, maxCount: maxCount}
}

// RequestRefresh cancels any in-flight refresh loop (synchronously: this call
// blocks until the previous loop has fully stopped) and starts a new one
// against parent's lifetime.
func (c *Controller) RequestRefresh(parent context.Context, hooks Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(ctx, done, hooks)
}

// Cancel stops any in-flight refresh loop synchronously. Safe to call when
// none is running.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
}

func (c *Controller) run(ctx context.Context, done chan struct{}, hooks Hooks) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Every(c.interval), 1)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	ticksRemaining := c.maxCount
	for ticksRemaining > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		c.tick(ctx, hooks)
		ticksRemaining--
	}
}

func (c *Controller) tick(ctx context.Context, hooks Hooks) {
	hash := hooks.Hash()
	if hash == hooks.LastHash() {
		return
	}

	png, err := hooks.Render(ctx)
	if err != nil {
		return
	}
	if err := hooks.Edit(ctx, png); err != nil {
		return
	}
	hooks.SetLastHash(hash)
}
