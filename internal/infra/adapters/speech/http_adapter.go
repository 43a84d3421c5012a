package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/ports/adapter"
	"presenter-video-pipeline/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.SpeechSynthesizer = (*HTTPAdapter)(nil)

const providerName = "speech"

// HTTPAdapter talks to the speech synthesis provider over its JSON API.
// Failures are surfaced verbatim and never retried here: synthesis
// errors are content or quota problems, not transient faults.
type HTTPAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewHTTPAdapter(baseURL, apiKey string) (*HTTPAdapter, error) {
	if baseURL == "" || apiKey == "" {
		return nil, errors.New("speech base url or api key empty")
	}
	return &HTTPAdapter{
		apiKey: apiKey,
		base:   baseURL,
		client: &http.Client{Timeout: 110 * time.Second},
	}, nil
}

func (a *HTTPAdapter) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	reqBody := struct {
		Text  string  `json:"text"`
		Voice string  `json:"voice"`
		Speed float64 `json:"speed,omitempty"`
	}{Text: text, Voice: voice, Speed: speed}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/v1/synthesize", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveProviderCall(providerName, "synthesize", time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &domain.ProviderError{Provider: providerName, Body: "empty audio payload"}
	}
	return audio, nil
}
