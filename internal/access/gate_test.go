package access

import (
	"sync"
	"testing"
	"time"
)

func int64p(v int64) *int64 { return &v }

func TestGate_AllowsListedUser(t *testing.T) {
	var replies int
	g := New([]int64{1, 2}, false, func(chatID int64, text string) error {
		replies++
		return nil
	}, func(code int) { t.Fatal("exit should not be called") })

	if !g.Allow(100, int64p(1)) {
		t.Fatal("expected listed user to be allowed")
	}
	if replies != 0 {
		t.Fatalf("replies = %d, want 0 for an allowed user", replies)
	}
}

func TestGate_NoUserIDRepliesUnidentified(t *testing.T) {
	var gotText string
	g := New([]int64{1}, false, func(chatID int64, text string) error {
		gotText = text
		return nil
	}, func(code int) { t.Fatal("exit should not be called") })

	if g.Allow(100, nil) {
		t.Fatal("expected nil user id to be denied")
	}
	if gotText == "" {
		t.Fatal("expected a reply for unidentified update")
	}
}

func TestGate_DeniesUnlistedUserWithoutAutoKill(t *testing.T) {
	var gotChat int64
	var gotText string
	g := New([]int64{1}, false, func(chatID int64, text string) error {
		gotChat, gotText = chatID, text
		return nil
	}, func(code int) { t.Fatal("exit should not be called") })

	if g.Allow(55, int64p(999)) {
		t.Fatal("expected unlisted user to be denied")
	}
	if gotChat != 55 {
		t.Fatalf("reply chat id = %d, want 55", gotChat)
	}
	if gotText == "" {
		t.Fatal("expected a denial message")
	}
}

func TestGate_AutoKillExitsAfterDelay(t *testing.T) {
	var mu sync.Mutex
	exited := false

	g := New([]int64{1}, true, func(chatID int64, text string) error { return nil },
		func(code int) {
			mu.Lock()
			exited = true
			mu.Unlock()
		})
	g.exitDelay = 10 * time.Millisecond

	if g.Allow(1, int64p(999)) {
		t.Fatal("expected unauthorised user to be denied even with autoKill")
	}

	mu.Lock()
	immediatelyExited := exited
	mu.Unlock()
	if immediatelyExited {
		t.Fatal("exit must not be called synchronously from Allow")
	}

	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !exited {
		t.Fatal("expected exit to be called after the delay")
	}
}

func TestGate_IsAllowed(t *testing.T) {
	g := New([]int64{1, 2}, false, nil, nil)
	if !g.IsAllowed(1) || !g.IsAllowed(2) {
		t.Fatal("expected listed ids to be allowed")
	}
	if g.IsAllowed(3) {
		t.Fatal("expected unlisted id to be denied")
	}
}
