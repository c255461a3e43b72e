package supervisor

import "testing"

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "****"},
		{"abcd", "****"},
		{"1234567890:ABCDEF", "****CDEF"},
	}
	for _, tt := range tests {
		if got := maskToken(tt.token); got != tt.want {
			t.Errorf("maskToken(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestRingLogCapsAtLimit(t *testing.T) {
	r := newRingLog(3)
	for i := 0; i < 5; i++ {
		r.push(string(rune('a' + i)))
	}
	got := r.snapshot()
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("snapshot length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWorkerProcessSnapshotReflectsStatus(t *testing.T) {
	wp := newWorkerProcess(0, "secret-token")
	if wp.Status() != StatusStopped {
		t.Fatalf("new worker status = %v, want %v", wp.Status(), StatusStopped)
	}
	wp.setStatus(StatusRunning)
	snap := wp.Snapshot()
	if snap.Status != StatusRunning {
		t.Fatalf("snapshot status = %v, want %v", snap.Status, StatusRunning)
	}
	if snap.MaskedToken == "secret-token" {
		t.Fatal("snapshot must not expose the raw token")
	}
}
