package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Encoder writes length-delimited JSON envelopes to an underlying stream: a
// 4-byte big-endian length prefix followed by the JSON body, so a reader
// never has to guess where one Message ends and the next begins.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes one envelope. Safe for concurrent use.
func (e *Encoder) Encode(m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("ipc: marshalling envelope: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := e.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("ipc: writing length prefix: %w", err)
	}
	if _, err := e.w.Write(body); err != nil {
		return fmt.Errorf("ipc: writing body: %w", err)
	}
	return nil
}

// Decoder reads length-delimited JSON envelopes from an underlying stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder wraps r. A single Decoder must not be used from multiple
// goroutines concurrently.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Decode blocks for the next envelope, or returns an error (io.EOF on a
// closed stream).
func (d *Decoder) Decode() (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Message{}, fmt.Errorf("ipc: reading body: %w", err)
	}

	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("ipc: unmarshalling envelope: %w", err)
	}
	return m, nil
}

// New builds a Message of kind for botID with now as its timestamp and
// payload as its (possibly nil) body.
func New(kind Kind, botID string, payload any) Message {
	return Message{
		Kind:      kind,
		BotID:     botID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   encodePayload(payload),
	}
}
