package config

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Store persists admin-issued configuration edits (addbot/removebot/reload) to
// the same .env-style file the supervisor loaded at startup, preserving every
// key it doesn't understand. Writes are atomic (write-temp + rename) and
// cross-process-safe via an flock-guarded critical section, the same locking
// idiom used for the per-token single-instance bot lock.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store bound to the .env file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Raw is an ordered key/value view of the .env file, preserving unknown keys
// and comment lines verbatim for round-tripping.
type Raw struct {
	lines []rawLine
}

type rawLine struct {
	key     string // empty for comments/blank lines
	value   string
	literal string // used verbatim for non-key lines
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

// load parses the .env file into a Raw document. A missing file yields an
// empty document (first addbot call creates it).
func (s *Store) load() (*Raw, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Raw{}, nil
		}
		return nil, err
	}
	defer f.Close()

	raw := &Raw{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || !strings.Contains(trimmed, "=") {
			raw.lines = append(raw.lines, rawLine{literal: line})
			continue
		}
		idx := strings.Index(trimmed, "=")
		key := strings.TrimSpace(trimmed[:idx])
		value := strings.TrimSpace(trimmed[idx+1:])
		raw.lines = append(raw.lines, rawLine{key: key, value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *Raw) get(key string) (string, bool) {
	for _, l := range r.lines {
		if l.key == key {
			return l.value, true
		}
	}
	return "", false
}

func (r *Raw) set(key, value string) {
	for i, l := range r.lines {
		if l.key == key {
			r.lines[i].value = value
			return
		}
	}
	r.lines = append(r.lines, rawLine{key: key, value: value})
}

func (r *Raw) render() string {
	var sb strings.Builder
	for _, l := range r.lines {
		if l.key == "" {
			sb.WriteString(l.literal)
		} else {
			sb.WriteString(fmt.Sprintf("%s=%s", l.key, l.value))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// withLock runs fn while holding an exclusive cross-process lock on the env
// file, reloading fresh state first and persisting atomically afterwards.
func (s *Store) withLock(fn func(*Raw) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && !os.IsExist(err) {
		return fmt.Errorf("config store: creating parent dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fl := flock.New(s.lockPath())
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("config store: acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("config store: timed out acquiring lock on %s", s.lockPath())
	}
	defer fl.Unlock()

	raw, err := s.load()
	if err != nil {
		return fmt.Errorf("config store: loading %s: %w", s.path, err)
	}

	if err := fn(raw); err != nil {
		return err
	}

	return s.atomicWrite(raw.render())
}

func (s *Store) atomicWrite(content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".env-*.tmp")
	if err != nil {
		return fmt.Errorf("config store: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("config store: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config store: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("config store: renaming into place: %w", err)
	}
	return nil
}

// AddBotToken appends a token to TELEGRAM_BOT_TOKENS if not already present.
func (s *Store) AddBotToken(token string) error {
	return s.withLock(func(raw *Raw) error {
		tokens := parseCSVValue(raw, "TELEGRAM_BOT_TOKENS")
		for _, t := range tokens {
			if t == token {
				return fmt.Errorf("token already registered")
			}
		}
		tokens = append(tokens, token)
		raw.set("TELEGRAM_BOT_TOKENS", strings.Join(tokens, ","))
		return nil
	})
}

// RemoveBotToken removes a token from TELEGRAM_BOT_TOKENS by its index
// (stable bot-N identity, see BotID).
func (s *Store) RemoveBotToken(index int) error {
	return s.withLock(func(raw *Raw) error {
		tokens := parseCSVValue(raw, "TELEGRAM_BOT_TOKENS")
		if index < 0 || index >= len(tokens) {
			return fmt.Errorf("no bot at index %d", index)
		}
		tokens = append(tokens[:index], tokens[index+1:]...)
		raw.set("TELEGRAM_BOT_TOKENS", strings.Join(tokens, ","))
		return nil
	})
}

// Tokens returns the currently persisted token list, for reconciliation.
func (s *Store) Tokens() ([]string, error) {
	var out []string
	err := s.withLock(func(raw *Raw) error {
		out = parseCSVValue(raw, "TELEGRAM_BOT_TOKENS")
		return nil
	})
	return out, err
}

func parseCSVValue(raw *Raw, key string) []string {
	v, ok := raw.get(key)
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
