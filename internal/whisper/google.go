package whisper

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// GoogleTranscriber speaks the Google Cloud Speech-to-Text REST API,
// selected when the configured TTS_API_KEY doesn't carry OpenAI's "sk-"
// prefix. Audio is base64-encoded and posted inline, matching the
// speech:recognize request shape.
type GoogleTranscriber struct {
	apiKey   string
	endpoint string // overridable in tests
}

// NewGoogleTranscriber returns a transcriber bound to apiKey.
func NewGoogleTranscriber(apiKey string) *GoogleTranscriber {
	return &GoogleTranscriber{
		apiKey:   apiKey,
		endpoint: "https://speech.googleapis.com/v1/speech:recognize",
	}
}

type googleRecognizeRequest struct {
	Config struct {
		Encoding        string `json:"encoding"`
		LanguageCode    string `json:"languageCode"`
		SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	} `json:"config"`
	Audio struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Transcribe implements Transcriber.
func (t *GoogleTranscriber) Transcribe(path string) (string, error) {
	if t.apiKey == "" {
		return "", newError(ErrKindNoKey, "google: no API key configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", newError(ErrKindDownloadFailed, "google: reading %s: %w", path, err)
	}

	var reqBody googleRecognizeRequest
	reqBody.Config.Encoding = "OGG_OPUS"
	reqBody.Config.LanguageCode = "en-US"
	reqBody.Config.SampleRateHertz = 48000
	reqBody.Audio.Content = base64.StdEncoding.EncodeToString(data)

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", newError(ErrKindGeneric, "google: encoding request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", t.endpoint, t.apiKey)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", newError(ErrKindGeneric, "google: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", newError(ErrKindGeneric, "google: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyHTTPError(resp.StatusCode, string(body), "google")
	}

	var result googleRecognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", newError(ErrKindGeneric, "google: decoding response: %w", err)
	}
	if len(result.Results) == 0 || len(result.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results[0].Alternatives[0].Transcript, nil
}
