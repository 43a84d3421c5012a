package renderfarm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/model"
	"presenter-video-pipeline/internal/domain/ports/adapter"
	"presenter-video-pipeline/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.RenderFarm = (*HTTPAdapter)(nil)

const providerName = "renderfarm"

// HTTPAdapter submits compositing renders to the serverless render farm
// and polls their progress. The farm throttles submissions under load;
// the coordinator wraps SubmitComposite in the shared retry policy.
type HTTPAdapter struct {
	apiKey string
	base   string
	client *http.Client
}

func NewHTTPAdapter(baseURL, apiKey string) (*HTTPAdapter, error) {
	if baseURL == "" || apiKey == "" {
		return nil, errors.New("renderfarm base url or api key empty")
	}
	return &HTTPAdapter{
		apiKey: apiKey,
		base:   baseURL,
		client: &http.Client{Timeout: 90 * time.Second},
	}, nil
}

func (a *HTTPAdapter) SubmitComposite(ctx context.Context, req adapter.CompositeRequest) (adapter.CompositeHandle, error) {
	reqBody := struct {
		JobID    string        `json:"job_id"`
		VideoURL string        `json:"video_url"`
		Title    string        `json:"title"`
		Slides   []model.Slide `json:"slides"`
		Ticker   string        `json:"ticker"`
	}{
		JobID:    req.JobID,
		VideoURL: req.VideoURL,
		Title:    req.Title,
		Slides:   req.Slides,
		Ticker:   req.Ticker,
	}

	b, _ := json.Marshal(reqBody)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/renders", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	metrics.ObserveProviderCall(providerName, "submit_composite", time.Since(start), err == nil)
	if err != nil {
		return adapter.CompositeHandle{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return adapter.CompositeHandle{}, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		RenderID string `json:"render_id"`
		Bucket   string `json:"bucket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return adapter.CompositeHandle{}, &domain.ProviderError{Provider: providerName, Body: "malformed submit response: " + err.Error()}
	}
	if payload.RenderID == "" || payload.Bucket == "" {
		return adapter.CompositeHandle{}, &domain.ProviderError{Provider: providerName, Body: "submit accepted without render id or bucket"}
	}
	return adapter.CompositeHandle{RenderID: payload.RenderID, Bucket: payload.Bucket}, nil
}

// GetProgress polls the farm. The farm reports a 0-1 fraction plus a done
// flag and an optional fatal error list; both normalize into the shared
// status model.
func (a *HTTPAdapter) GetProgress(ctx context.Context, handle adapter.CompositeHandle) (adapter.RenderStatus, error) {
	u := a.base + "/renders/" + url.PathEscape(handle.RenderID) + "?bucket=" + url.QueryEscape(handle.Bucket)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	start := time.Now()
	resp, err := a.client.Do(req)
	metrics.ObserveProviderCall(providerName, "get_progress", time.Since(start), err == nil)
	if err != nil {
		return adapter.RenderStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return adapter.RenderStatus{}, &domain.ProviderError{Provider: providerName, Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		OverallProgress float64  `json:"overall_progress"`
		Done            bool     `json:"done"`
		OutputFile      string   `json:"output_file"`
		FatalError      string   `json:"fatal_error"`
		Errors          []string `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return adapter.RenderStatus{}, &domain.ProviderError{Provider: providerName, Body: "malformed progress response: " + err.Error()}
	}
	return normalize(payload.OverallProgress, payload.Done, payload.OutputFile, payload.FatalError, payload.Errors), nil
}

func normalize(fraction float64, done bool, outputFile, fatal string, errs []string) adapter.RenderStatus {
	if fatal == "" && len(errs) > 0 {
		fatal = errs[0]
	}
	if fatal != "" {
		return adapter.RenderStatus{State: adapter.StateError, ErrorMessage: fatal}
	}
	pct := adapter.NormalizeProgress(fraction)
	if done {
		if pct > 90 {
			pct = 90
		}
		return adapter.RenderStatus{State: adapter.StateComplete, Progress: pct, OutputURL: outputFile}
	}
	state := adapter.StateProcessing
	if pct == 0 {
		state = adapter.StatePending
	}
	return adapter.RenderStatus{State: state, Progress: pct}
}
