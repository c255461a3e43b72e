package analyser

import "strings"

// Substitute expands [mN] placeholders (N in 0..9) against placeholders and
// [media] against mediaDir, in that deterministic order (per the Open
// Question resolution: [mN] first, then [media]). Both sets are applied in a
// single left-to-right scan over the original text, so an [mN] value that
// itself contains the literal text "[media]" is left as-is rather than
// re-expanded: substitution is applied once, not recursively. Empty
// placeholders are left literal.
func Substitute(text string, placeholders [10]string, mediaDir string) string {
	var pairs []string
	for i, value := range placeholders {
		if value == "" {
			continue
		}
		pairs = append(pairs, placeholderToken(i), value)
	}
	if mediaDir != "" {
		pairs = append(pairs, "[media]", mediaDir)
	}
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func placeholderToken(i int) string {
	return "[m" + string(rune('0'+i)) + "]"
}
