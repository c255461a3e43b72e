package renderer

import (
	"strings"
	"testing"
)

func TestScreen_ProcessWritesVisibleText(t *testing.T) {
	s := NewScreen(5, 20)
	s.Process([]byte("hello"))

	grid := s.Cells()
	var line strings.Builder
	for _, c := range grid[0] {
		line.WriteRune(c.Char)
	}
	if got := strings.TrimRight(line.String(), " "); got != "hello" {
		t.Fatalf("first row = %q, want %q", got, "hello")
	}
}

func TestScreen_ResizeChangesDimensions(t *testing.T) {
	s := NewScreen(5, 20)
	s.Resize(10, 40)
	rows, cols := s.Size()
	if rows != 10 || cols != 40 {
		t.Fatalf("Size() = %dx%d, want 40x10", cols, rows)
	}
	if got := len(s.Cells()); got != 10 {
		t.Fatalf("Cells() has %d rows, want 10", got)
	}
}

func TestScreen_HashChangesWithContent(t *testing.T) {
	s := NewScreen(5, 20)
	h1 := s.Hash()
	s.Process([]byte("x"))
	h2 := s.Hash()
	if h1 == h2 {
		t.Fatal("Hash() did not change after writing a cell")
	}
}

func TestScreen_HashStableForSameContent(t *testing.T) {
	s1 := NewScreen(5, 20)
	s2 := NewScreen(5, 20)
	s1.Process([]byte("same"))
	s2.Process([]byte("same"))
	if s1.Hash() != s2.Hash() {
		t.Fatal("Hash() differs for identical screen content")
	}
}

func TestScreen_CursorPositionAdvances(t *testing.T) {
	s := NewScreen(5, 20)
	s.Process([]byte("abc"))
	row, col := s.CursorPosition()
	if row != 0 || col != 3 {
		t.Fatalf("CursorPosition() = (%d,%d), want (0,3)", row, col)
	}
}
