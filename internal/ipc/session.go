package ipc

import (
	"fmt"
	"io"

	"github.com/hashicorp/yamux"
)

// streamPair combines a separate reader and writer (a child process's stdout
// and stdin) into the single io.ReadWriteCloser yamux requires.
type streamPair struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p *streamPair) Close() error {
	var firstErr error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewStdioPair builds the ReadWriteCloser a supervisor or worker hands to
// yamux, from a child's (or its own) stdout/stdin.
func NewStdioPair(r io.ReadCloser, w io.WriteCloser) io.ReadWriteCloser {
	return &streamPair{Reader: r, Writer: w, closers: []io.Closer{r, w}}
}

// Session multiplexes two logical streams over one transport: Control
// carries IPCMessage envelopes; Logs is a second stream opened only when
// VERBOSE_LOGGING is set. Nothing in this module writes to or reads from
// Logs; worker log lines reach the supervisor over the worker's stderr pipe.
type Session struct {
	mux     *yamux.Session
	Control io.ReadWriteCloser
	Logs    io.ReadWriteCloser
}

// NewSupervisorSession opens the supervisor's side of the pair: it actively
// dials both logical streams, matching the worker's passive accept.
func NewSupervisorSession(rwc io.ReadWriteCloser, withLogs bool) (*Session, error) {
	mux, err := yamux.Client(rwc, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: opening supervisor session: %w", err)
	}
	control, err := mux.Open()
	if err != nil {
		mux.Close()
		return nil, fmt.Errorf("ipc: opening control stream: %w", err)
	}
	s := &Session{mux: mux, Control: control}
	if withLogs {
		logs, err := mux.Open()
		if err != nil {
			mux.Close()
			return nil, fmt.Errorf("ipc: opening log stream: %w", err)
		}
		s.Logs = logs
	}
	return s, nil
}

// NewWorkerSession accepts the worker's side of the pair: it passively
// accepts the streams the supervisor dials, in the same order.
func NewWorkerSession(rwc io.ReadWriteCloser, withLogs bool) (*Session, error) {
	mux, err := yamux.Server(rwc, nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: opening worker session: %w", err)
	}
	control, err := mux.Accept()
	if err != nil {
		mux.Close()
		return nil, fmt.Errorf("ipc: accepting control stream: %w", err)
	}
	s := &Session{mux: mux, Control: control}
	if withLogs {
		logs, err := mux.Accept()
		if err != nil {
			mux.Close()
			return nil, fmt.Errorf("ipc: accepting log stream: %w", err)
		}
		s.Logs = logs
	}
	return s, nil
}

// Close tears down every logical stream and the underlying session.
func (s *Session) Close() error {
	return s.mux.Close()
}
