package whisper

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// OpenAICloudTranscriber speaks the OpenAI-compatible audio-transcriptions
// endpoint, selected when the configured TTS_API_KEY has an "sk-" prefix.
type OpenAICloudTranscriber struct {
	apiKey   string
	endpoint string // overridable in tests
}

// NewOpenAICloudTranscriber returns a transcriber bound to apiKey.
func NewOpenAICloudTranscriber(apiKey string) *OpenAICloudTranscriber {
	return &OpenAICloudTranscriber{
		apiKey:   apiKey,
		endpoint: "https://api.openai.com/v1/audio/transcriptions",
	}
}

// Transcribe implements Transcriber.
func (t *OpenAICloudTranscriber) Transcribe(path string) (string, error) {
	if t.apiKey == "" {
		return "", newError(ErrKindNoKey, "openai: no API key configured")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", newError(ErrKindDownloadFailed, "openai: opening %s: %w", path, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", newError(ErrKindGeneric, "openai: building request: %w", err)
	}
	if _, err = io.Copy(part, file); err != nil {
		return "", newError(ErrKindGeneric, "openai: reading audio: %w", err)
	}
	writer.WriteField("model", "whisper-1")
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, t.endpoint, body)
	if err != nil {
		return "", newError(ErrKindGeneric, "openai: building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", newError(ErrKindGeneric, "openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", classifyHTTPError(resp.StatusCode, string(respBody), "openai")
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", newError(ErrKindGeneric, "openai: decoding response: %w", err)
	}
	return result.Text, nil
}

// classifyHTTPError maps a provider's HTTP status to an ErrorKind.
func classifyHTTPError(status int, body, provider string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return newError(ErrKindInvalidKey, "%s: invalid API key (%d)", provider, status)
	case http.StatusRequestEntityTooLarge:
		return newError(ErrKindFileTooLarge, "%s: file too large (%d)", provider, status)
	case http.StatusTooManyRequests:
		return newError(ErrKindRateLimited, "%s: rate limited (%d)", provider, status)
	case http.StatusPaymentRequired:
		return newError(ErrKindQuotaExceeded, "%s: quota exceeded (%d)", provider, status)
	case http.StatusUnsupportedMediaType:
		return newError(ErrKindUnsupportedFormat, "%s: unsupported format (%d)", provider, status)
	default:
		return newError(ErrKindGeneric, "%s: transcription failed (%d): %s", provider, status, body)
	}
}
