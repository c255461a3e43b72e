package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_BOT_TOKENS", "ALLOWED_USER_IDS", "AUTO_KILL",
		"XTERM_MAX_OUTPUT_LINES", "XTERM_SESSION_TIMEOUT", "XTERM_TERMINAL_ROWS",
		"XTERM_TERMINAL_COLS", "XTERM_FONT_SIZE", "XTERM_SHELL_PATH",
		"MEDIA_TMP_LOCATION", "CLEAN_UP_MEDIADIR", "MESSAGE_DELETE_TIMEOUT",
		"SCREEN_REFRESH_INTERVAL", "SCREEN_REFRESH_MAX_COUNT",
		"BOT_TOKEN_MONITOR_INTERVAL", "CONTROL_BOT_TOKEN", "CONTROL_BOT_ADMIN_IDS",
		"VERBOSE_LOGGING", "TTS_API_KEY", "DISCORD_BOT_TOKEN", "DISCORD_GUILD_ID",
	} {
		os.Unsetenv(k)
	}
	for i := 0; i < 10; i++ {
		os.Unsetenv("M" + string(rune('0'+i)))
	}
}

func TestLoad_MissingTokens(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when TELEGRAM_BOT_TOKENS is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("TELEGRAM_BOT_TOKENS", "tok-a,tok-b")
	os.Setenv("ALLOWED_USER_IDS", "100, 200")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Tokens) != 2 || cfg.Tokens[0] != "tok-a" || cfg.Tokens[1] != "tok-b" {
		t.Fatalf("Tokens = %v", cfg.Tokens)
	}
	if len(cfg.AllowedUserIDs) != 2 || cfg.AllowedUserIDs[0] != 100 || cfg.AllowedUserIDs[1] != 200 {
		t.Fatalf("AllowedUserIDs = %v", cfg.AllowedUserIDs)
	}
	if !cfg.IsAdmin(100) || cfg.IsAdmin(200) {
		t.Fatalf("IsAdmin should only be true for the first allowed id")
	}
	if cfg.MaxOutputLines != DefaultMaxOutputLines {
		t.Errorf("MaxOutputLines = %d, want default %d", cfg.MaxOutputLines, DefaultMaxOutputLines)
	}
	if cfg.ShellPath != DefaultShellPath {
		t.Errorf("ShellPath = %q, want %q", cfg.ShellPath, DefaultShellPath)
	}
}

func TestLoad_InvalidUserID(t *testing.T) {
	clearEnv(t)
	os.Setenv("TELEGRAM_BOT_TOKENS", "tok-a")
	os.Setenv("ALLOWED_USER_IDS", "not-a-number")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid ALLOWED_USER_IDS")
	}
}

func TestBotIDAndPaths(t *testing.T) {
	cfg := &Config{MediaRoot: "/tmp/media"}
	if got := BotID(0); got != "bot-0" {
		t.Errorf("BotID(0) = %q", got)
	}
	if got := cfg.MediaDir("bot-0"); got != "/tmp/media/bot-0" {
		t.Errorf("MediaDir = %q", got)
	}
	if got := cfg.SentDir("bot-0"); got != "/tmp/media/bot-0/sent" {
		t.Errorf("SentDir = %q", got)
	}
	if got := cfg.StartupPromptPath("copilot", "bot-0"); got != "startup/copilot-bot-0.json" {
		t.Errorf("StartupPromptPath = %q", got)
	}
}
