package autorefresh

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func hashSource(hashes ...string) func() string {
	var i int32
	return func() string {
		idx := atomic.AddInt32(&i, 1) - 1
		if int(idx) >= len(hashes) {
			return hashes[len(hashes)-1]
		}
		return hashes[idx]
	}
}

func TestController_BoundedByMaxCount(t *testing.T) {
	c := New(10*time.Millisecond, 3)

	var renders int32
	var lastHash string
	var mu sync.Mutex

	hooks := Hooks{
		Hash:     hashSource("h1", "h2", "h3", "h4", "h5"),
		LastHash: func() string { mu.Lock(); defer mu.Unlock(); return lastHash },
		SetLastHash: func(h string) {
			mu.Lock()
			lastHash = h
			mu.Unlock()
		},
		Render: func(ctx context.Context) ([]byte, error) {
			atomic.AddInt32(&renders, 1)
			return []byte("png"), nil
		},
		Edit: func(ctx context.Context, png []byte) error { return nil },
	}

	c.RequestRefresh(context.Background(), hooks)
	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&renders); got != 3 {
		t.Fatalf("renders = %d, want 3 (bounded by maxCount)", got)
	}
}

func TestController_SkipsRenderOnUnchangedHash(t *testing.T) {
	c := New(10*time.Millisecond, 3)

	var renders int32
	hooks := Hooks{
		Hash:        hashSource("same", "same", "same"),
		LastHash:    func() string { return "same" },
		SetLastHash: func(h string) {},
		Render: func(ctx context.Context) ([]byte, error) {
			atomic.AddInt32(&renders, 1)
			return []byte("png"), nil
		},
		Edit: func(ctx context.Context, png []byte) error { return nil },
	}

	c.RequestRefresh(context.Background(), hooks)
	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&renders); got != 0 {
		t.Fatalf("renders = %d, want 0 when hash never changes", got)
	}
}

func TestController_RequestRefreshCancelsPreviousRun(t *testing.T) {
	c := New(10*time.Millisecond, 100)

	var lastHash string
	var mu sync.Mutex
	hooks := func(renders *int32) Hooks {
		return Hooks{
			Hash:     hashSource("a", "b", "c", "d", "e", "f", "g", "h"),
			LastHash: func() string { mu.Lock(); defer mu.Unlock(); return lastHash },
			SetLastHash: func(h string) {
				mu.Lock()
				lastHash = h
				mu.Unlock()
			},
			Render: func(ctx context.Context) ([]byte, error) {
				atomic.AddInt32(renders, 1)
				return []byte("png"), nil
			},
			Edit: func(ctx context.Context, png []byte) error { return nil },
		}
	}

	var oldRenders, newRenders int32
	c.RequestRefresh(context.Background(), hooks(&oldRenders))
	time.Sleep(25 * time.Millisecond)
	// Replacing mid-flight must not let the old loop keep ticking afterward.
	c.RequestRefresh(context.Background(), hooks(&newRenders))

	oldAtReplace := atomic.LoadInt32(&oldRenders)
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt32(&oldRenders); got != oldAtReplace {
		t.Fatalf("old run rendered %d times after replacement, want 0", got-oldAtReplace)
	}

	c.Cancel()
}

func TestController_CancelIsSynchronous(t *testing.T) {
	c := New(5*time.Millisecond, 1000)

	var ticking int32
	hooks := Hooks{
		Hash:        hashSource("x", "y", "z", "w"),
		LastHash:    func() string { return "" },
		SetLastHash: func(h string) {},
		Render: func(ctx context.Context) ([]byte, error) {
			atomic.AddInt32(&ticking, 1)
			return []byte("png"), nil
		},
		Edit: func(ctx context.Context, png []byte) error { return nil },
	}

	c.RequestRefresh(context.Background(), hooks)
	time.Sleep(20 * time.Millisecond)
	c.Cancel()

	countAtCancel := atomic.LoadInt32(&ticking)
	time.Sleep(30 * time.Millisecond)
	countAfterWait := atomic.LoadInt32(&ticking)

	if countAtCancel != countAfterWait {
		t.Fatalf("loop kept running after Cancel() returned: %d -> %d", countAtCancel, countAfterWait)
	}
}

func TestController_CancelWithoutRunningLoopIsNoop(t *testing.T) {
	c := New(time.Second, 1)
	c.Cancel()
}
