// Package ipc implements the tagged-envelope wire format and the
// yamux-multiplexed transport supervisor and worker processes speak over
// each other's stdio pipes (§3 IPCMessage, §6 "length-delimited tagged
// envelopes ... carried over a yamux-multiplexed pair of streams"). Grounded
// on the teacher's internal/bridge package (yamux session wiring), with the
// networked gRPC+websocket transport replaced by a process-local
// io.ReadWriteCloser built from the child's stdin/stdout pipes, since this
// system has no networked control plane.
package ipc

import "encoding/json"

// Kind tags an IPCMessage's payload, per §3's IPCMessage tagged variant.
type Kind string

const (
	KindReady          Kind = "READY"
	KindHealthCheck    Kind = "HEALTH_CHECK"
	KindHealthResponse Kind = "HEALTH_RESPONSE"
	KindShutdown       Kind = "SHUTDOWN"
	KindStatusUpdate   Kind = "STATUS_UPDATE"
	KindLogMessage     Kind = "LOG_MESSAGE"
	KindBotInfo        Kind = "BOT_INFO"
	KindError          Kind = "ERROR"
)

// Message is one envelope exchanged between supervisor and worker.
type Message struct {
	Kind      Kind            `json:"kind"`
	BotID     string          `json:"botId"`
	Timestamp int64           `json:"timestamp"` // unix millis
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// HealthResponsePayload is KindHealthResponse's payload.
type HealthResponsePayload struct {
	UptimeSeconds int64 `json:"uptimeSeconds"`
	MemRSSBytes   int64 `json:"memRssBytes"`
}

// BotInfoPayload is KindBotInfo's payload.
type BotInfoPayload struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
}

// StatusUpdatePayload is KindStatusUpdate's payload: a free-form status the
// worker wants reflected in the supervisor's WorkerProcess record.
type StatusUpdatePayload struct {
	Status string `json:"status"`
}

// LogMessagePayload is KindLogMessage's payload: one log line, which the
// supervisor appends to the worker's ring log. The worker in this module
// does not send KindLogMessage; its log lines reach the supervisor over
// its stderr pipe.
type LogMessagePayload struct {
	Line string `json:"line"`
}

// ErrorPayload is KindError's payload.
type ErrorPayload struct {
	Message string `json:"message"`
}

// AutoKillReason is the ErrorPayload.Message a worker sends immediately
// before exiting in response to its own access gate's autoKill action. The
// supervisor treats an exit preceded by this message as a deliberate stop,
// not a crash, and does not auto-restart it (§8 scenario 6).
const AutoKillReason = "autokill: unauthorised access"

// Decode unmarshals m.Payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// encodePayload marshals v into a Message payload (nil for a nil v).
func encodePayload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, _ := json.Marshal(v)
	return data
}
