package format

import (
	"fmt"
	"strings"
)

// FormatCodeBlock formats code with syntax highlighting for Telegram
func FormatCodeBlock(code, language string) string {
	if language != "" {
		return fmt.Sprintf("```%s\n%s\n```", language, code)
	}
	return fmt.Sprintf("```\n%s\n```", code)
}

// FormatError formats a short templated error reply (see error handling design: every
// handler catches failures and replies with a single, short, templated message).
func FormatError(title, message string) string {
	return fmt.Sprintf("❌ **%s**\n\n%s", title, message)
}

// FormatWarning formats a warning message
func FormatWarning(title, message string) string {
	return fmt.Sprintf("⚠️ **%s**\n\n%s", title, message)
}

// FormatSuccess formats a success message
func FormatSuccess(title, message string) string {
	return fmt.Sprintf("✅ **%s**\n\n%s", title, message)
}

// EscapeHTML escapes special characters for Telegram HTML
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// ToTelegramHTML converts simple markdown to Telegram HTML format
func ToTelegramHTML(text string) string {
	text = EscapeHTML(text)

	for {
		start := strings.Index(text, "```")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+3:], "```")
		if end == -1 {
			break
		}
		content := text[start+3 : start+3+end]
		if newlineIdx := strings.Index(content, "\n"); newlineIdx != -1 {
			if newlineIdx > 0 {
				content = content[newlineIdx+1:]
			} else {
				content = content[1:]
			}
		}
		text = text[:start] + "<pre>" + content + "</pre>" + text[start+3+end+3:]
	}

	for {
		start := strings.Index(text, "**")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+2:], "**")
		if end == -1 {
			break
		}
		text = text[:start] + "<b>" + text[start+2:start+2+end] + "</b>" + text[start+2+end+2:]
	}

	for {
		start := strings.Index(text, "_")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+1:], "_")
		if end == -1 {
			break
		}
		text = text[:start] + "<i>" + text[start+1:start+1+end] + "</i>" + text[start+1+end+1:]
	}

	for {
		start := strings.Index(text, "`")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+1:], "`")
		if end == -1 {
			break
		}
		text = text[:start] + "<code>" + text[start+1:start+1+end] + "</code>" + text[start+1+end+1:]
	}

	return text
}

// ToDiscordMarkdown ensures text is safe for Discord. Discord's markdown is close
// enough to what we generate that we pass it through unmodified.
func ToDiscordMarkdown(text string) string {
	return text
}

// TruncateForCallback pre-truncates a message so a callback-query answer (capped at
// roughly 200 chars by the chat API) never gets silently rejected.
func TruncateForCallback(text string, limit int) string {
	if limit <= 0 {
		limit = 200
	}
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	if limit <= 1 {
		return string(r[:limit])
	}
	return string(r[:limit-1]) + "…"
}
