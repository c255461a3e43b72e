package renderer

import (
	"image/color"
	"strings"
	"testing"
)

func TestBuildHTML_EscapesAndRendersGlyphs(t *testing.T) {
	grid := [][]Cell{
		{{Char: '<'}, {Char: 'a'}, {Char: ' '}},
	}
	page := buildHTML(grid, 14)

	if !strings.Contains(page, "&lt;") {
		t.Errorf("expected '<' to be HTML-escaped, got: %s", page)
	}
	if !strings.Contains(page, ">a<") {
		t.Errorf("expected plain glyph 'a' to be present, got: %s", page)
	}
	if !strings.Contains(page, "&nbsp;") {
		t.Errorf("expected blank cell to render as &nbsp;, got: %s", page)
	}
	if !strings.Contains(page, "id=\"term\"") {
		t.Errorf("expected #term container for chromedp to wait on, got: %s", page)
	}
}

func TestBuildHTML_UsesCellColorsWhenSet(t *testing.T) {
	grid := [][]Cell{
		{{Char: 'x', FG: color.RGBA{R: 255, G: 0, B: 0, A: 255}}},
	}
	page := buildHTML(grid, 14)
	if !strings.Contains(page, "color:#ff0000") {
		t.Errorf("expected red foreground in output, got: %s", page)
	}
}

func TestBuildHTML_DefaultsWhenCellHasNoStyle(t *testing.T) {
	grid := [][]Cell{{{Char: 'x'}}}
	page := buildHTML(grid, 14)
	if !strings.Contains(page, "color:"+defaultFG) {
		t.Errorf("expected default foreground, got: %s", page)
	}
	if !strings.Contains(page, "background-color:"+defaultBG) {
		t.Errorf("expected default background, got: %s", page)
	}
}
