package mediawatcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"a.png", KindPhoto},
		{"a.JPG", KindPhoto},
		{"clip.mp4", KindVideo},
		{"note.ogg", KindVoice},
		{"song.mp3", KindAudio},
		{"sticker.webp", KindDocument},
		{"report.pdf", KindDocument},
		{"noext", KindDocument},
	}
	for _, tt := range tests {
		if got := Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

type sendCall struct {
	userID  int64
	path    string
	caption string
	kind    Kind
}

func TestWatcher_FansOutAndMoves(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var calls []sendCall

	w, err := New(Options{
		Root:           root,
		AllowedUserIDs: []int64{1, 2},
		Grace:          10 * time.Millisecond,
		Send: func(userID int64, path, caption string, kind Kind) error {
			mu.Lock()
			calls = append(calls, sendCall{userID, path, caption, kind})
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	picPath := filepath.Join(root, "pic.png")
	if err := os.WriteFile(picPath, []byte("fake png"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(root, "sent", "pic.png")); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(filepath.Join(root, "sent", "pic.png")); err != nil {
		t.Fatalf("expected pic.png to be moved to sent/: %v", err)
	}
	if _, err := os.Stat(picPath); !os.IsNotExist(err) {
		t.Fatalf("expected original file removed from root, stat err = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("send calls = %d, want 2 (one per allowed user)", len(calls))
	}
	for _, c := range calls {
		if c.caption != "pic.png" || c.kind != KindPhoto {
			t.Errorf("call = %+v, want caption=pic.png kind=KindPhoto", c)
		}
	}
}

func TestWatcher_CollisionAppendsTimestamp(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sent"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sent", "pic.png"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(Options{
		Root:           root,
		AllowedUserIDs: []int64{1},
		Grace:          10 * time.Millisecond,
		Send:           func(userID int64, path, caption string, kind Kind) error { return nil },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "pic.png"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var matches []string
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(filepath.Join(root, "sent"))
		matches = matches[:0]
		for _, e := range entries {
			matches = append(matches, e.Name())
		}
		if len(matches) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(matches) != 2 {
		t.Fatalf("sent/ contains %v, want 2 entries (original + collision-renamed)", matches)
	}
}

func TestWatcher_SkipsSentAndReceivedDirs(t *testing.T) {
	root := t.TempDir()

	var calls int
	w, err := New(Options{
		Root:           root,
		AllowedUserIDs: []int64{1},
		Grace:          10 * time.Millisecond,
		Send: func(userID int64, path, caption string, kind Kind) error {
			calls++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()

	time.Sleep(150 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("send calls = %d, want 0 (sent/received dir creation must not be treated as a media file)", calls)
	}
}
