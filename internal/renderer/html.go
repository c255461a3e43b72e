package renderer

import (
	"fmt"
	"html"
	"strings"
)

// defaultFG/BG match a standard dark terminal theme; used whenever a cell
// carries no explicit style (the common case for most output).
const (
	defaultFG = "#d4d4d4"
	defaultBG = "#1e1e1e"
)

// buildHTML serialises a cell grid into a self-contained HTML page: one
// monospace <span> per cell, grouped into <div> rows. chromedp rasterises
// this page directly; there is no client-side JS.
func buildHTML(grid [][]Cell, fontSize int) string {
	var body strings.Builder
	for _, row := range grid {
		body.WriteString("<div class=\"row\">")
		for _, cell := range row {
			fg, bg := cellColors(cell)
			ch := string(cell.Char)
			if ch == " " || ch == "" {
				ch = "&nbsp;"
			} else {
				ch = html.EscapeString(ch)
			}
			weight := "normal"
			if cell.Bold {
				weight = "bold"
			}
			opacity := "1"
			if cell.Dim {
				opacity = "0.6"
			}
			fmt.Fprintf(&body, "<span style=\"color:%s;background-color:%s;font-weight:%s;opacity:%s\">%s</span>", fg, bg, weight, opacity, ch)
		}
		body.WriteString("</div>")
	}

	return fmt.Sprintf(`<!doctype html><html><head><meta charset="utf-8"><style>
body{margin:0;background:%s;}
.term{display:inline-block;font-family:"DejaVu Sans Mono","Courier New",monospace;font-size:%dpx;line-height:1.2;white-space:pre;}
.row{display:block;}
</style></head><body><div class="term" id="term">%s</div></body></html>`, defaultBG, fontSize, body.String())
}

func cellColors(c Cell) (fg, bg string) {
	fg, bg = defaultFG, defaultBG
	if c.FG != nil {
		fg = hexColor(c.FG)
	}
	if c.BG != nil {
		bg = hexColor(c.BG)
	}
	return fg, bg
}

func hexColor(c interface {
	RGBA() (r, g, b, a uint32)
}) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}
