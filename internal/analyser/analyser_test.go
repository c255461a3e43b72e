package analyser

import (
	"testing"
	"time"
)

func TestAnalyser_OnBellFiresForBelByte(t *testing.T) {
	var fired int
	a := New(nil, nil, Callbacks{OnBell: func() { fired++ }})
	a.Feed([]byte("hello\x07world"))
	if fired != 1 {
		t.Fatalf("OnBell fired %d times, want 1", fired)
	}
}

func TestAnalyser_OnBellDoesNotFireWithoutBel(t *testing.T) {
	var fired int
	a := New(nil, nil, Callbacks{OnBell: func() { fired++ }})
	a.Feed([]byte("no bell here"))
	if fired != 0 {
		t.Fatalf("OnBell fired %d times, want 0", fired)
	}
}

func TestAnalyser_ConfirmationPromptExactSubstring(t *testing.T) {
	var fired int
	a := New(nil, nil, Callbacks{OnConfirmationPrompt: func() { fired++ }})
	a.Feed([]byte("Pick an option\n1. Y\n2. N\n"))
	if fired != 1 {
		t.Fatalf("OnConfirmationPrompt fired %d times, want 1", fired)
	}
}

func TestAnalyser_ConfirmationPromptCaseSensitive(t *testing.T) {
	var fired int
	a := New(nil, nil, Callbacks{OnConfirmationPrompt: func() { fired++ }})
	a.Feed([]byte("1. y\n"))
	if fired != 0 {
		t.Fatalf("OnConfirmationPrompt fired %d times for lowercase variant, want 0", fired)
	}
}

func TestAnalyser_ConfirmationPromptDebounced(t *testing.T) {
	var fired int
	a := New(nil, nil, Callbacks{OnConfirmationPrompt: func() { fired++ }})
	a.Feed([]byte("1. Y\n"))
	a.Feed([]byte("1. Y\n"))
	a.Feed([]byte("1. Y\n"))
	if fired != 1 {
		t.Fatalf("OnConfirmationPrompt fired %d times within debounce window, want 1", fired)
	}

	a.lastConfirmation = time.Now().Add(-6 * time.Second)
	a.Feed([]byte("1. Y\n"))
	if fired != 2 {
		t.Fatalf("OnConfirmationPrompt fired %d times after debounce window elapsed, want 2", fired)
	}
}

func TestAnalyser_URLDiscoveryDedup(t *testing.T) {
	var discovered []string
	discoveredSet := make(map[string]struct{})
	notifiedSet := make(map[string]struct{})
	a := New(discoveredSet, notifiedSet, Callbacks{
		OnURLDiscovered: func(url string) { discovered = append(discovered, url) },
	})

	a.Feed([]byte("Server at http://localhost:3000 ready"))
	a.Feed([]byte("Server at http://localhost:3000 ready"))

	if len(discovered) != 1 {
		t.Fatalf("OnURLDiscovered fired %d times, want 1 (got %v)", len(discovered), discovered)
	}
	if discovered[0] != "http://localhost:3000" {
		t.Fatalf("discovered URL = %q, want %q", discovered[0], "http://localhost:3000")
	}
	if _, ok := notifiedSet["http://localhost:3000"]; !ok {
		t.Fatal("expected URL to be recorded in notified set")
	}
	if _, ok := discoveredSet["http://localhost:3000"]; !ok {
		t.Fatal("expected URL to be recorded in discovered set")
	}
}

func TestAnalyser_URLExtractionStripsANSIFirst(t *testing.T) {
	var discovered []string
	a := New(nil, nil, Callbacks{OnURLDiscovered: func(url string) { discovered = append(discovered, url) }})

	a.Feed([]byte("\x1b[32mhttp://example.com/path\x1b[0m\n"))
	if len(discovered) != 1 || discovered[0] != "http://example.com/path" {
		t.Fatalf("discovered = %v, want [http://example.com/path]", discovered)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"csi color", "\x1b[31mred\x1b[0m", "red"},
		{"plain text", "no escapes", "no escapes"},
		{"cursor move", "a\x1b[2Jb", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripANSI(tt.in); got != tt.want {
				t.Errorf("StripANSI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
