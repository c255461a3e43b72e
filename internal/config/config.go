// Package config parses and validates process-wide configuration from the
// environment, and derives the per-bot filesystem paths the rest of the
// system reads and writes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is immutable after Load returns.
type Config struct {
	Tokens         []string
	AllowedUserIDs []int64
	AutoKill       bool

	MaxOutputLines   int
	SessionTimeoutMs int64
	Rows             int
	Cols             int
	FontSize         int
	ShellPath        string

	MediaRoot         string
	CleanMediaOnStart bool

	MessageDeleteTimeoutMs  int64
	ScreenRefreshIntervalMs int64
	ScreenRefreshMaxCount   int

	BotTokenMonitorIntervalMs int64

	ControlBotToken  string
	ControlAdminIDs  []int64
	VerboseLogging   bool

	TTSApiKey string

	DiscordToken     string
	DiscordGuildID   string
	DiscordChannelID string

	MCPSocketPath string

	// Placeholders holds M0..M9 text substitutions, index i <-> [mI].
	Placeholders [10]string
}

// Default values, used when the corresponding env var is absent.
const (
	DefaultMaxOutputLines          = 200
	DefaultSessionTimeoutMs        = 15 * 60 * 1000
	DefaultRows                    = 32
	DefaultCols                    = 100
	DefaultFontSize                = 14
	DefaultShellPath               = "/bin/bash"
	DefaultMediaRoot               = "./media"
	DefaultMessageDeleteTimeoutMs  = 10 * 1000
	DefaultScreenRefreshIntervalMs = 1500
	DefaultScreenRefreshMaxCount   = 8
)

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		AutoKill:                false,
		MaxOutputLines:          DefaultMaxOutputLines,
		SessionTimeoutMs:        DefaultSessionTimeoutMs,
		Rows:                    DefaultRows,
		Cols:                    DefaultCols,
		FontSize:                DefaultFontSize,
		ShellPath:               DefaultShellPath,
		MediaRoot:               DefaultMediaRoot,
		MessageDeleteTimeoutMs:  DefaultMessageDeleteTimeoutMs,
		ScreenRefreshIntervalMs: DefaultScreenRefreshIntervalMs,
		ScreenRefreshMaxCount:   DefaultScreenRefreshMaxCount,
	}

	tokens, err := splitCSV("TELEGRAM_BOT_TOKENS")
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKENS is required and must list at least one token")
	}
	cfg.Tokens = tokens

	if ids, err := splitInt64CSV("ALLOWED_USER_IDS"); err != nil {
		return nil, err
	} else {
		cfg.AllowedUserIDs = ids
	}

	cfg.AutoKill = boolEnv("AUTO_KILL", false)

	cfg.MaxOutputLines = intEnv("XTERM_MAX_OUTPUT_LINES", DefaultMaxOutputLines)
	cfg.SessionTimeoutMs = int64Env("XTERM_SESSION_TIMEOUT", DefaultSessionTimeoutMs)
	cfg.Rows = intEnv("XTERM_TERMINAL_ROWS", DefaultRows)
	cfg.Cols = intEnv("XTERM_TERMINAL_COLS", DefaultCols)
	cfg.FontSize = intEnv("XTERM_FONT_SIZE", DefaultFontSize)
	cfg.ShellPath = stringEnv("XTERM_SHELL_PATH", DefaultShellPath)

	cfg.MediaRoot = stringEnv("MEDIA_TMP_LOCATION", DefaultMediaRoot)
	cfg.CleanMediaOnStart = boolEnv("CLEAN_UP_MEDIADIR", false)

	cfg.MessageDeleteTimeoutMs = int64Env("MESSAGE_DELETE_TIMEOUT", DefaultMessageDeleteTimeoutMs)
	cfg.ScreenRefreshIntervalMs = int64Env("SCREEN_REFRESH_INTERVAL", DefaultScreenRefreshIntervalMs)
	cfg.ScreenRefreshMaxCount = intEnv("SCREEN_REFRESH_MAX_COUNT", DefaultScreenRefreshMaxCount)

	cfg.BotTokenMonitorIntervalMs = int64Env("BOT_TOKEN_MONITOR_INTERVAL", 0)

	cfg.ControlBotToken = os.Getenv("CONTROL_BOT_TOKEN")
	if ids, err := splitInt64CSV("CONTROL_BOT_ADMIN_IDS"); err != nil {
		return nil, err
	} else {
		cfg.ControlAdminIDs = ids
	}

	cfg.VerboseLogging = boolEnv("VERBOSE_LOGGING", false)
	cfg.TTSApiKey = os.Getenv("TTS_API_KEY")

	cfg.DiscordToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.DiscordGuildID = os.Getenv("DISCORD_GUILD_ID")
	cfg.DiscordChannelID = os.Getenv("DISCORD_CHANNEL_ID")

	cfg.MCPSocketPath = os.Getenv("BRIDGE_MCP_SOCKET")

	for i := 0; i < 10; i++ {
		cfg.Placeholders[i] = os.Getenv(fmt.Sprintf("M%d", i))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("at least one bot token is required")
	}
	if c.MaxOutputLines <= 0 {
		return fmt.Errorf("XTERM_MAX_OUTPUT_LINES must be positive, got %d", c.MaxOutputLines)
	}
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("terminal dimensions must be positive, got %dx%d", c.Cols, c.Rows)
	}
	if c.ScreenRefreshMaxCount < 0 {
		return fmt.Errorf("SCREEN_REFRESH_MAX_COUNT must not be negative")
	}
	return nil
}

// BotID derives the stable identifier for the Nth configured token.
func BotID(index int) string {
	return fmt.Sprintf("bot-%d", index)
}

// IsAdmin reports whether userID is the first entry of AllowedUserIDs (the
// designated recipient of supervisor-triggered notifications).
func (c *Config) IsAdmin(userID int64) bool {
	return len(c.AllowedUserIDs) > 0 && c.AllowedUserIDs[0] == userID
}

// MediaDir returns {mediaRoot}/{botId}.
func (c *Config) MediaDir(botID string) string {
	return filepath.Join(c.MediaRoot, botID)
}

// SentDir returns {mediaRoot}/{botId}/sent.
func (c *Config) SentDir(botID string) string {
	return filepath.Join(c.MediaDir(botID), "sent")
}

// ReceivedDir returns {mediaRoot}/{botId}/received.
func (c *Config) ReceivedDir(botID string) string {
	return filepath.Join(c.MediaDir(botID), "received")
}

// AudioTmpDir returns {mediaRoot}/{botId}/audio, used for voice-message downloads.
func (c *Config) AudioTmpDir(botID string) string {
	return filepath.Join(c.MediaDir(botID), "audio")
}

// StartupPromptPath returns the path of a persisted per-bot startup prompt,
// e.g. startup/copilot-bot-0.json.
func (c *Config) StartupPromptPath(assistantType, botID string) string {
	return filepath.Join("startup", fmt.Sprintf("%s-%s.json", assistantType, botID))
}

func splitCSV(name string) ([]string, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out, nil
}

func splitInt64CSV(name string) ([]int64, error) {
	parts, _ := splitCSV(name)
	if parts == nil {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid integer %q: %w", name, p, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func boolEnv(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func intEnv(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func int64Env(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func stringEnv(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
