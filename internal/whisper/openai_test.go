package whisper

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestOpenAICloudTranscriber_Transcribe(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-*.ogg")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Write([]byte("dummy audio content"))
	tmpFile.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"text": "Hello world"}`))
	}))
	defer server.Close()

	tr := &OpenAICloudTranscriber{apiKey: "test-key", endpoint: server.URL}
	text, err := tr.Transcribe(tmpFile.Name())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", text)
	}
}

func TestOpenAICloudTranscriber_InvalidKey(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "test-*.ogg")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.WriteString("x")
	tmpFile.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := &OpenAICloudTranscriber{apiKey: "bad-key", endpoint: server.URL}
	_, err = tr.Transcribe(tmpFile.Name())
	if KindOf(err) != ErrKindInvalidKey {
		t.Fatalf("expected ErrKindInvalidKey, got %v (%v)", KindOf(err), err)
	}
}

func TestOpenAICloudTranscriber_NoKey(t *testing.T) {
	tr := &OpenAICloudTranscriber{}
	_, err := tr.Transcribe("irrelevant")
	if KindOf(err) != ErrKindNoKey {
		t.Fatalf("expected ErrKindNoKey, got %v", KindOf(err))
	}
}
