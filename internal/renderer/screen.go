// Package renderer turns a raw PTY byte stream into a PNG screenshot: an
// embedded VT100 emulator builds a cell grid, which is serialised to a small
// HTML page and rasterised by a pooled headless-Chrome tab via a
// chromedp allocator/context pair and a charmbracelet/x/vt terminal
// emulator wrapper.
package renderer

import (
	"hash/fnv"
	"image/color"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

// Cell holds one terminal cell's glyph and styling.
type Cell struct {
	Char rune
	FG   color.Color
	BG   color.Color
	Bold bool
	Dim  bool
}

// Screen wraps a charmbracelet/x/vt emulator, feeding it raw PTY bytes and
// exposing a plain cell grid plus a change-detection hash.
type Screen struct {
	mu   sync.Mutex
	term vt.Terminal
	rows int
	cols int
}

// NewScreen creates an emulator sized rows x cols.
func NewScreen(rows, cols int) *Screen {
	return &Screen{
		term: vt.NewSafeEmulator(cols, rows),
		rows: rows,
		cols: cols,
	}
}

// Process resets the emulator (ESC c) and replays data into it, so the screen
// state reflects exactly data; feeding the same buffer twice yields the same
// screen and the same Hash.
func (s *Screen) Process(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.Write([]byte("\x1bc"))
	s.term.Write(data)
}

// Resize changes the emulator's dimensions. No caller in this module resizes
// a Screen after NewScreen.
func (s *Screen) Resize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows, s.cols = rows, cols
	s.term.Resize(cols, rows)
}

// Size returns the current dimensions.
func (s *Screen) Size() (rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

// Cells returns the current screen as a rows x cols grid of styled cells.
func (s *Screen) Cells() [][]Cell {
	s.mu.Lock()
	defer s.mu.Unlock()

	grid := make([][]Cell, s.rows)
	for y := 0; y < s.rows; y++ {
		row := make([]Cell, s.cols)
		for x := 0; x < s.cols; x++ {
			cell := s.term.CellAt(x, y)
			c := Cell{Char: ' '}
			if cell != nil {
				if cell.Content != "" {
					if r := []rune(cell.Content); len(r) > 0 {
						c.Char = r[0]
					}
				}
				c.FG = cell.Style.Fg
				c.BG = cell.Style.Bg
				c.Bold = cell.Style.Attrs&uv.AttrBold != 0
				c.Dim = cell.Style.Attrs&uv.AttrFaint != 0
			}
			row[x] = c
		}
		grid[y] = row
	}
	return grid
}

// CursorPosition returns the cursor's (row, col).
func (s *Screen) CursorPosition() (row, col int) {
	pos := s.term.CursorPosition()
	return pos.Y, pos.X
}

// Hash returns an FNV hash of the visible cell contents and cursor position,
// used by the auto-refresh controller to skip redundant screenshots when
// nothing on screen has changed.
func (s *Screen) Hash() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := fnv.New64a()
	for y := 0; y < s.rows; y++ {
		for x := 0; x < s.cols; x++ {
			cell := s.term.CellAt(x, y)
			if cell != nil && cell.Content != "" {
				h.Write([]byte(cell.Content))
			} else {
				h.Write([]byte{' '})
			}
		}
	}
	pos := s.term.CursorPosition()
	h.Write([]byte{byte(pos.Y), byte(pos.X)})
	return h.Sum64()
}
