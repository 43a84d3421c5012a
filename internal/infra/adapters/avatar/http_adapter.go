package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/ports/adapter"
	"presenter-video-pipeline/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AvatarProvider = (*HTTPAdapter)(nil)

const providerName = "avatar"

// HTTPAdapter implements the avatar provider port: asset registration,
// render submission and poll-based status.
type HTTPAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewHTTPAdapter(baseURL, apiKey string) (*HTTPAdapter, error) {
	if baseURL == "" || apiKey == "" {
		return nil, errors.New("avatar base url or api key empty")
	}
	return &HTTPAdapter{
		apiKey: apiKey,
		base:   baseURL,
		client: &http.Client{Timeout: 90 * time.Second},
	}, nil
}

func (a *HTTPAdapter) CreateAsset(ctx context.Context, name string, kind adapter.AssetKind) (string, error) {
	reqBody := struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}{Name: name, Type: string(kind)}

	var payload struct {
		ID string `json:"id"`
	}
	if err := a.postJSON(ctx, "/v1/assets", "create_asset", reqBody, &payload); err != nil {
		return "", err
	}
	if payload.ID == "" {
		return "", &domain.ProviderError{Provider: providerName, Body: "asset created without id"}
	}
	return payload.ID, nil
}

func (a *HTTPAdapter) UploadAsset(ctx context.Context, assetID string, data []byte, filename string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/assets/%s/upload", a.base, assetID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveProviderCall(providerName, "upload_asset", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &domain.ProviderError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (a *HTTPAdapter) SubmitRender(ctx context.Context, r adapter.RenderRequest) (string, error) {
	reqBody := struct {
		AudioAssetID     string `json:"audio_asset_id"`
		CharacterAssetID string `json:"character_asset_id"`
		Resolution       string `json:"resolution,omitempty"`
		AspectRatio      string `json:"aspect_ratio,omitempty"`
		TextPrompt       string `json:"text_prompt"`
	}{
		AudioAssetID:     r.AudioAssetID,
		CharacterAssetID: r.CharacterAssetID,
		Resolution:       r.Resolution,
		AspectRatio:      r.AspectRatio,
		TextPrompt:       r.Prompt,
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := a.postJSON(ctx, "/v1/generations", "submit_render", reqBody, &payload); err != nil {
		return "", err
	}
	if payload.ID == "" {
		return "", &domain.ProviderError{Provider: providerName, Body: "generation accepted without id"}
	}
	return payload.ID, nil
}

// GetStatus queries the provider and normalizes its vocabulary into the
// shared progress model.
func (a *HTTPAdapter) GetStatus(ctx context.Context, externalID string) (adapter.RenderStatus, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/generations/%s/status", a.base, externalID), nil)
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveProviderCall(providerName, "get_status", time.Since(start), err == nil)
	if err != nil {
		return adapter.RenderStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return adapter.RenderStatus{}, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Status       string  `json:"status"`
		Progress     float64 `json:"progress"`
		URL          string  `json:"url"`
		ErrorMessage string  `json:"error_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return adapter.RenderStatus{}, &domain.ProviderError{Provider: providerName, Body: "malformed status response: " + err.Error()}
	}
	return Normalize(payload.Status, payload.Progress, payload.URL, payload.ErrorMessage), nil
}

func (a *HTTPAdapter) postJSON(ctx context.Context, path, op string, in, out any) error {
	b, _ := json.Marshal(in)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveProviderCall(providerName, op, time.Since(start), err == nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &domain.ProviderError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{Provider: providerName, Body: "malformed response: " + err.Error()}
	}
	return nil
}
