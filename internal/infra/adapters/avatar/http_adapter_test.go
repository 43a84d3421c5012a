package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/ports/adapter"
)

func TestCreateAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/assets" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Type != "audio" {
			t.Errorf("type = %q", body.Type)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "asset-42"})
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	id, err := a.CreateAsset(context.Background(), "voice.wav", adapter.AssetAudio)
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if id != "asset-42" {
		t.Fatalf("id = %q", id)
	}
}

func TestCreateAssetMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	if _, err := a.CreateAsset(context.Background(), "voice.wav", adapter.AssetAudio); err == nil {
		t.Fatal("want error when the provider omits the asset id")
	}
}

func TestUploadAssetMultipart(t *testing.T) {
	var gotFile []byte
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/assets/asset-42/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		buf := make([]byte, hdr.Size)
		_, _ = f.Read(buf)
		gotFile = buf
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	if err := a.UploadAsset(context.Background(), "asset-42", []byte("wav-bytes"), "voice.wav"); err != nil {
		t.Fatalf("UploadAsset: %v", err)
	}
	if gotName != "voice.wav" || string(gotFile) != "wav-bytes" {
		t.Fatalf("uploaded %q as %q", gotFile, gotName)
	}
}

func TestSubmitRender(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "gen-7"})
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	id, err := a.SubmitRender(context.Background(), adapter.RenderRequest{
		AudioAssetID:     "asset-1",
		CharacterAssetID: "asset-2",
		Resolution:       "1080p",
		Prompt:           "a presenter",
	})
	if err != nil {
		t.Fatalf("SubmitRender: %v", err)
	}
	if id != "gen-7" {
		t.Fatalf("id = %q", id)
	}
	if body["audio_asset_id"] != "asset-1" || body["character_asset_id"] != "asset-2" {
		t.Fatalf("request body = %v", body)
	}
}

func TestSubmitRenderRateLimitClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	_, err := a.SubmitRender(context.Background(), adapter.RenderRequest{AudioAssetID: "a"})
	if !domain.IsRateLimited(err) {
		t.Fatalf("429 must classify as rate limited, got %v", err)
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Body != "slow down" {
		t.Fatalf("provider body lost: %v", err)
	}
}

func TestGetStatusNormalizes(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		state    adapter.RenderState
		progress int
		url      string
	}{
		{"fractional progress", `{"status":"in_progress","progress":0.42}`, adapter.StateProcessing, 42, ""},
		{"percent progress", `{"status":"rendering","progress":55}`, adapter.StateProcessing, 55, ""},
		{"unknown word is processing", `{"status":"warming_up","progress":0.1}`, adapter.StateProcessing, 10, ""},
		{"queued is pending", `{"status":"queued","progress":0}`, adapter.StatePending, 0, ""},
		{"complete capped at 90", `{"status":"completed","progress":1.0,"url":"https://cdn/x.mp4"}`, adapter.StateComplete, 90, "https://cdn/x.mp4"},
		{"overshoot clamped", `{"status":"running","progress":180}`, adapter.StateProcessing, 100, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/generations/gen-7/status" {
					t.Errorf("path = %s", r.URL.Path)
				}
				fmt.Fprint(w, tc.payload)
			}))
			defer srv.Close()

			a, _ := NewHTTPAdapter(srv.URL, "key")
			st, err := a.GetStatus(context.Background(), "gen-7")
			if err != nil {
				t.Fatalf("GetStatus: %v", err)
			}
			if st.State != tc.state || st.Progress != tc.progress || st.OutputURL != tc.url {
				t.Fatalf("got %+v", st)
			}
		})
	}
}

func TestGetStatusErrorState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"failed","error_message":"render node crashed"}`)
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	st, err := a.GetStatus(context.Background(), "gen-7")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != adapter.StateError || st.ErrorMessage != "render node crashed" {
		t.Fatalf("got %+v", st)
	}
}

func TestGetStatusMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	a, _ := NewHTTPAdapter(srv.URL, "key")
	if _, err := a.GetStatus(context.Background(), "gen-7"); err == nil {
		t.Fatal("want error for malformed status body")
	}
}
