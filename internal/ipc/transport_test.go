package ipc

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	want := New(KindHealthResponse, "bot-0", HealthResponsePayload{UptimeSeconds: 42, MemRSSBytes: 1024})
	if err := enc.Encode(want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != want.Kind || got.BotID != want.BotID {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	var payload HealthResponsePayload
	if err := got.Decode(&payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.UptimeSeconds != 42 || payload.MemRSSBytes != 1024 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEncodeDecodeMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	dec := NewDecoder(&buf)

	msgs := []Message{
		New(KindReady, "bot-0", nil),
		New(KindShutdown, "bot-0", nil),
		New(KindError, "bot-0", ErrorPayload{Message: "boom"}),
	}
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	for _, want := range msgs {
		got, err := dec.Decode()
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Kind != want.Kind {
			t.Fatalf("got kind %v, want %v", got.Kind, want.Kind)
		}
	}
}
