// Package ptysession owns the (botId,userId) -> PtySession map: spawning PTYs,
// ring-buffering their output, sweeping idle sessions, and giving callers an
// atomic snapshot to render. Grounded on the teacher's
// core/internal/host/pty_manager.go, generalised from a single global session
// map to one keyed by (bot, user) and given an idle sweeper and ring buffer.
package ptysession

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

var (
	// ErrAlreadyExists is returned by CreateSession when a session for the
	// key already exists (invariant I1: at most one session per key).
	ErrAlreadyExists = errors.New("ptysession: session already exists")
	// ErrNotFound is returned by Write/WriteRaw/Snapshot/Close when no
	// session exists for the key.
	ErrNotFound = errors.New("ptysession: session not found")
)

// Key identifies a session by the bot serving it and the chat user it serves.
type Key struct {
	BotID  string
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.BotID, k.UserID)
}

// DataFunc is invoked synchronously, in order, for every chunk a PTY emits.
// Implementations must not block: the analyser, auto-refresh, and other
// downstream reactions all fan out from this single call.
type DataFunc func(key Key, chunk []byte)

// Session is a live PTY bound to one chat user on one bot.
type Session struct {
	Key    Key
	ChatID int64
	Rows   int
	Cols   int

	ptmx   *os.File
	cmd    *exec.Cmd
	Output *RingBuffer

	mu                       sync.Mutex
	lastActivity             time.Time
	LastScreenshotMsgID      int
	LastScreenshotBufferHash string
	DiscoveredURLs           map[string]struct{}
	NotifiedURLs             map[string]struct{}

	cancelRefresh func() // set by the auto-refresh controller; Close calls it

	closeOnce sync.Once
	closed    chan struct{}
}

// LastActivity returns the last time a write or PTY output touched the session.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// SetRefreshCanceller registers the function the auto-refresh controller uses
// to synchronously cancel its ticker. Close calls it before tearing down the
// PTY so no tick fires after Close returns (testable property in spec §8).
func (s *Session) SetRefreshCanceller(cancel func()) {
	s.mu.Lock()
	s.cancelRefresh = cancel
	s.mu.Unlock()
}

// SetLastScreenshot records the message id and buffer hash of the most recent
// screenshot, used by the auto-refresh controller's hash-skip optimisation.
func (s *Session) SetLastScreenshot(msgID int, hash string) {
	s.mu.Lock()
	s.LastScreenshotMsgID = msgID
	s.LastScreenshotBufferHash = hash
	s.mu.Unlock()
}

// Snapshot returns the atomic concatenation of retained output plus the
// terminal dimensions, suitable for rendering or hashing.
type Snapshot struct {
	Data []byte
	Rows int
	Cols int
}

// Manager owns every live session across every (botId,userId) pair served by
// this worker.
type Manager struct {
	mu       sync.Mutex
	sessions map[Key]*Session

	shellPath        string
	defaultRows      int
	defaultCols      int
	maxOutputLines   int
	sessionTimeout   time.Duration
	homeDir          string

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Options configures a Manager.
type Options struct {
	ShellPath      string
	Rows           int
	Cols           int
	MaxOutputLines int
	SessionTimeout time.Duration
	HomeDir        string
}

// NewManager constructs a Manager and starts its idle sweeper.
func NewManager(opts Options) *Manager {
	m := &Manager{
		sessions:       make(map[Key]*Session),
		shellPath:      opts.ShellPath,
		defaultRows:    opts.Rows,
		defaultCols:    opts.Cols,
		maxOutputLines: opts.MaxOutputLines,
		sessionTimeout: opts.SessionTimeout,
		homeDir:        opts.HomeDir,
		sweepStop:      make(chan struct{}),
		sweepDone:      make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// CreateSession spawns a shell under a new PTY for key and starts copying its
// output into the session's ring buffer, invoking onData for every chunk.
// dir, if non-empty, overrides the manager's configured home dir as the
// shell's working directory (per §4.5's optional `/xterm [dir]` argument);
// callers are responsible for validating it before calling in.
func (m *Manager) CreateSession(key Key, chatID int64, dir string, onData DataFunc) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[key]; exists {
		m.mu.Unlock()
		return nil, ErrAlreadyExists
	}
	// Reserve the slot before releasing the lock so a concurrent has->create
	// race can't let two callers both pass the exists check (per spec: "Map
	// mutations are serialised so has -> create is race-free").
	placeholder := &Session{}
	m.sessions[key] = placeholder
	m.mu.Unlock()

	cmd := exec.Command(m.shellPath)
	switch {
	case dir != "":
		cmd.Dir = dir
	case m.homeDir != "":
		cmd.Dir = m.homeDir
	}
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(m.defaultRows),
		Cols: uint16(m.defaultCols),
	})
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, fmt.Errorf("ptysession: spawn %s: %w", m.shellPath, err)
	}

	sess := &Session{
		Key:            key,
		ChatID:         chatID,
		Rows:           m.defaultRows,
		Cols:           m.defaultCols,
		ptmx:           ptmx,
		cmd:            cmd,
		Output:         NewRingBuffer(m.maxOutputLines),
		lastActivity:   time.Now(),
		DiscoveredURLs: make(map[string]struct{}),
		NotifiedURLs:   make(map[string]struct{}),
		closed:         make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[key] = sess
	m.mu.Unlock()

	go m.pump(sess, onData)

	return sess, nil
}

// pump copies PTY output into the ring buffer and invokes onData for each
// chunk until the PTY exits, at which point the session is silently removed
// (the spec requires no callback to the dispatcher on PTY exit).
func (m *Manager) pump(sess *Session, onData DataFunc) {
	buf := make([]byte, 4096)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			sess.Output.Append(chunk)
			sess.touch()
			if onData != nil {
				onData(sess.Key, chunk)
			}
		}
		if err != nil {
			break
		}
	}

	m.mu.Lock()
	if current, ok := m.sessions[sess.Key]; ok && current == sess {
		delete(m.sessions, sess.Key)
	}
	m.mu.Unlock()

	sess.closeOnce.Do(func() { close(sess.closed) })
}

// Write sends text to the PTY, appending \r if appendEnter is true.
func (m *Manager) Write(key Key, text string, appendEnter bool) error {
	if _, err := m.get(key); err != nil {
		return err
	}
	if appendEnter {
		text += "\r"
	}
	return m.WriteRaw(key, []byte(text))
}

// WriteRaw writes raw bytes to the PTY and bumps lastActivity.
func (m *Manager) WriteRaw(key Key, data []byte) error {
	sess, err := m.get(key)
	if err != nil {
		return err
	}
	if _, err := sess.ptmx.Write(data); err != nil {
		return fmt.Errorf("ptysession: write: %w", err)
	}
	sess.touch()
	return nil
}

// Resize changes the PTY's terminal dimensions.
func (m *Manager) Resize(key Key, rows, cols int) error {
	sess, err := m.get(key)
	if err != nil {
		return err
	}
	if err := pty.Setsize(sess.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("ptysession: resize: %w", err)
	}
	sess.mu.Lock()
	sess.Rows, sess.Cols = rows, cols
	sess.mu.Unlock()
	return nil
}

// Snapshot returns an atomic copy of the ring buffer plus dimensions.
func (m *Manager) Snapshot(key Key) (Snapshot, error) {
	sess, err := m.get(key)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	rows, cols := sess.Rows, sess.Cols
	sess.mu.Unlock()
	return Snapshot{Data: sess.Output.Concat(), Rows: rows, Cols: cols}, nil
}

// Get returns the live session for key, or ErrNotFound.
func (m *Manager) Get(key Key) (*Session, error) {
	return m.get(key)
}

// Has reports whether a session currently exists for key.
func (m *Manager) Has(key Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[key]
	return ok
}

func (m *Manager) get(key Key) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Close cancels the session's tickers/timers, kills its PTY, and removes the
// map entry. Closing a session that doesn't exist returns ErrNotFound (the
// spec leaves idempotence as an implementation choice; this implementation
// is not idempotent, matching the explicit NotFound semantics elsewhere).
func (m *Manager) Close(key Key) error {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	sess.mu.Lock()
	cancel := sess.cancelRefresh
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if sess.cmd.Process != nil {
		_ = sess.cmd.Process.Kill()
	}
	_ = sess.ptmx.Close()

	sess.closeOnce.Do(func() { close(sess.closed) })
	return nil
}

// Shutdown stops the idle sweeper. It does not close live sessions; the
// worker's own shutdown path closes each one explicitly so cancellation
// ordering (refresh ticker before PTY kill) is preserved.
func (m *Manager) Shutdown() {
	close(m.sweepStop)
	<-m.sweepDone
}

func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()
	var toClose []Key
	m.mu.Lock()
	for key, sess := range m.sessions {
		sess.mu.Lock()
		idleFor := now.Sub(sess.lastActivity)
		sess.mu.Unlock()
		if idleFor > m.sessionTimeout {
			toClose = append(toClose, key)
		}
	}
	m.mu.Unlock()

	for _, key := range toClose {
		if err := m.Close(key); err == ErrNotFound {
			// Closed concurrently by an explicit /close; nothing to log.
			continue
		}
	}
}
