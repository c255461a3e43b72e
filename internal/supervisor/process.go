// Package supervisor spawns, monitors, restarts, and IPC-coordinates one
// worker process per configured bot token, and exposes fleet-management
// operations over a ControlBot. Grounded on the teacher's
// core/internal/bridge/server.go (process lifecycle + IPC wiring), with the
// gRPC/websocket transport replaced by the process-local internal/ipc
// package.
package supervisor

import (
	"sync"
	"time"

	"github.com/ptyrelay/ptyrelay/internal/config"
)

// Status is a WorkerProcess's lifecycle state (§3 WorkerProcess).
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// ringLog is a fixed-capacity FIFO of log lines (§3 "ringLog[<=100]").
type ringLog struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

func newRingLog(cap int) *ringLog {
	return &ringLog{cap: cap}
}

func (r *ringLog) push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.cap; over > 0 {
		r.lines = r.lines[over:]
	}
}

func (r *ringLog) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// maskToken returns four asterisks followed by the token's last 4 characters
// (just "****" for tokens of 4 characters or fewer), for display in status
// output and logs.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// WorkerProcess is the supervisor-side record of one running (or stopped)
// worker (§3).
type WorkerProcess struct {
	BotID       string
	Index       int
	Token       string
	MaskedToken string

	mu         sync.Mutex
	status     Status
	pid        int
	startTime  *time.Time
	lastError  string
	lastWasAutoKill bool

	log *ringLog

	runtime *workerRuntime // nil when not running
}

func newWorkerProcess(index int, token string) *WorkerProcess {
	return &WorkerProcess{
		BotID:       config.BotID(index),
		Index:       index,
		Token:       token,
		MaskedToken: maskToken(token),
		status:      StatusStopped,
		log:         newRingLog(100),
	}
}

func (w *WorkerProcess) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

func (w *WorkerProcess) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *WorkerProcess) setError(err string) {
	w.mu.Lock()
	w.status = StatusError
	w.lastError = err
	w.mu.Unlock()
}

// Snapshot is an immutable view of a WorkerProcess, safe to hand to a
// ControlBot handler without holding any lock.
type Snapshot struct {
	BotID       string
	MaskedToken string
	PID         int
	Status      Status
	StartTime   *time.Time
	LastError   string
	Log         []string
}

func (w *WorkerProcess) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		BotID:       w.BotID,
		MaskedToken: w.MaskedToken,
		PID:         w.pid,
		Status:      w.status,
		StartTime:   w.startTime,
		LastError:   w.lastError,
		Log:         w.log.snapshot(),
	}
}

