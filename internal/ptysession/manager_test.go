package ptysession

import (
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Options{
		ShellPath:      "/bin/sh",
		Rows:           24,
		Cols:           80,
		MaxOutputLines: 64,
		SessionTimeout: time.Hour,
	})
	t.Cleanup(m.Shutdown)
	return m
}

func waitForOutput(t *testing.T, m *Manager, key Key, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, err := m.Snapshot(key)
		if err == nil && strings.Contains(string(snap.Data), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for output containing %q", want)
}

func TestManager_CreateWriteSnapshotClose(t *testing.T) {
	m := testManager(t)
	key := Key{BotID: "bot-0", UserID: 42}

	sess, err := m.CreateSession(key, 1000, "", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if sess.Key != key {
		t.Fatalf("session key = %v, want %v", sess.Key, key)
	}

	if err := m.Write(key, "echo marker123", true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	waitForOutput(t, m, key, "marker123", 2*time.Second)

	if err := m.Close(key); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.Has(key) {
		t.Fatal("session still present after Close")
	}
}

func TestManager_CreateSession_Duplicate(t *testing.T) {
	m := testManager(t)
	key := Key{BotID: "bot-0", UserID: 1}

	if _, err := m.CreateSession(key, 1, "", nil); err != nil {
		t.Fatalf("first CreateSession() error = %v", err)
	}
	defer m.Close(key)

	if _, err := m.CreateSession(key, 1, "", nil); err != ErrAlreadyExists {
		t.Fatalf("second CreateSession() error = %v, want ErrAlreadyExists", err)
	}
}

func TestManager_OperationsOnMissingSession(t *testing.T) {
	m := testManager(t)
	key := Key{BotID: "bot-0", UserID: 99}

	if err := m.Write(key, "x", false); err != ErrNotFound {
		t.Errorf("Write() error = %v, want ErrNotFound", err)
	}
	if err := m.WriteRaw(key, []byte("x")); err != ErrNotFound {
		t.Errorf("WriteRaw() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Snapshot(key); err != ErrNotFound {
		t.Errorf("Snapshot() error = %v, want ErrNotFound", err)
	}
	if err := m.Close(key); err != ErrNotFound {
		t.Errorf("Close() error = %v, want ErrNotFound", err)
	}
}

func TestManager_OnDataCallbackFiresForOutput(t *testing.T) {
	m := testManager(t)
	key := Key{BotID: "bot-0", UserID: 7}

	received := make(chan []byte, 64)
	_, err := m.CreateSession(key, 1, "", func(k Key, chunk []byte) {
		if k != key {
			t.Errorf("onData key = %v, want %v", k, key)
		}
		received <- chunk
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer m.Close(key)

	if err := m.Write(key, "echo hi", true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	var all []byte
	for {
		select {
		case chunk := <-received:
			all = append(all, chunk...)
			if strings.Contains(string(all), "hi") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for onData callback output")
		}
	}
}

func TestManager_CloseCallsRefreshCanceller(t *testing.T) {
	m := testManager(t)
	key := Key{BotID: "bot-0", UserID: 3}

	sess, err := m.CreateSession(key, 1, "", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	cancelled := false
	sess.SetRefreshCanceller(func() { cancelled = true })

	if err := m.Close(key); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !cancelled {
		t.Fatal("expected refresh canceller to be called on Close")
	}
}

func TestManager_Resize(t *testing.T) {
	m := testManager(t)
	key := Key{BotID: "bot-0", UserID: 4}

	if _, err := m.CreateSession(key, 1, "", nil); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	defer m.Close(key)

	if err := m.Resize(key, 40, 120); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	snap, err := m.Snapshot(key)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Rows != 40 || snap.Cols != 120 {
		t.Fatalf("Snapshot dims = %dx%d, want 120x40", snap.Cols, snap.Rows)
	}
}

func TestManager_SweepIdleClosesStaleSessions(t *testing.T) {
	m := NewManager(Options{
		ShellPath:      "/bin/sh",
		Rows:           24,
		Cols:           80,
		MaxOutputLines: 64,
		SessionTimeout: time.Hour,
	})
	defer m.Shutdown()

	key := Key{BotID: "bot-0", UserID: 5}
	sess, err := m.CreateSession(key, 1, "", nil)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-2 * time.Hour)
	sess.mu.Unlock()

	m.sweepIdle()

	if m.Has(key) {
		t.Fatal("expected idle session to be swept")
	}
}
