package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"presenter-video-pipeline/internal/domain"
)

func TestMigrationKey(t *testing.T) {
	if got := MigrationKey("job-1", "final"); got != "videos/job-1/final.mp4" {
		t.Fatalf("got %q", got)
	}
	if got := MigrationKey("job-1", "composite"); got != "videos/job-1/composite.mp4" {
		t.Fatalf("got %q", got)
	}
}

func TestMigrateStoresAndSigns(t *testing.T) {
	payload := strings.Repeat("v", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, payload)
	}))
	defer srv.Close()

	store := newMemStorage()
	m := NewMigrator(store, time.Hour)

	out, err := m.Migrate(context.Background(), "job-1", "final", srv.URL+"/v.mp4", 9000)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if out.Key != "videos/job-1/final.mp4" {
		t.Fatalf("key = %q", out.Key)
	}
	if out.SizeBytes != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", out.SizeBytes, len(payload))
	}
	if out.DurationMS != 9000 {
		t.Fatalf("duration = %d, want the known 9000", out.DurationMS)
	}
	if !strings.Contains(out.URL, out.Key) {
		t.Fatalf("signed url %q does not reference the key", out.URL)
	}

	rc, size, err := store.Get(context.Background(), out.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != payload || size != int64(len(payload)) {
		t.Fatalf("stored object mismatch: %d bytes", len(b))
	}
}

func TestMigrateIdempotentOverwrite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	store := newMemStorage()
	m := NewMigrator(store, time.Hour)
	ctx := context.Background()

	first, err := m.Migrate(ctx, "job-1", "final", srv.URL, 0)
	if err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	second, err := m.Migrate(ctx, "job-1", "final", srv.URL, 0)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if first.Key != second.Key {
		t.Fatalf("keys differ: %q vs %q", first.Key, second.Key)
	}
	if len(store.objects) != 1 {
		t.Fatalf("stored %d objects, want 1", len(store.objects))
	}
}

func TestMigrateDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewMigrator(newMemStorage(), time.Hour)
	_, err := m.Migrate(context.Background(), "job-1", "final", srv.URL+"/gone.mp4", 0)

	var me *domain.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("want MigrationError, got %v", err)
	}
	if me.ProviderURL != srv.URL+"/gone.mp4" {
		t.Fatalf("ProviderURL = %q", me.ProviderURL)
	}
	if me.Stage != "final" {
		t.Fatalf("Stage = %q", me.Stage)
	}
}

func TestMigrateStoreFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	store := newMemStorage()
	store.putErr = errors.New("bucket sealed")
	m := NewMigrator(store, time.Hour)

	_, err := m.Migrate(context.Background(), "job-1", "composite", srv.URL, 0)
	var me *domain.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("want MigrationError, got %v", err)
	}
	if !strings.Contains(me.Error(), srv.URL) {
		t.Fatalf("error text %q must keep the ephemeral url", me.Error())
	}
}

func TestEstimateVideoDurationMS(t *testing.T) {
	// 2 Mbit/s fallback: 250_000 bytes is one second.
	if got := EstimateVideoDurationMS(250_000); got != 1000 {
		t.Fatalf("got %d, want 1000", got)
	}
	if got := EstimateVideoDurationMS(0); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestEstimateAudioDurationMS(t *testing.T) {
	// 1 second of 44.1kHz 16-bit mono plus a 44-byte header.
	if got := EstimateAudioDurationMS(44+88200, 44100, 2, 44); got != 1000 {
		t.Fatalf("got %d, want 1000", got)
	}
	if got := EstimateAudioDurationMS(40, 44100, 2, 44); got != 0 {
		t.Fatalf("header-only payload: got %d, want 0", got)
	}
	if got := EstimateAudioDurationMS(1000, 0, 2, 44); got != 0 {
		t.Fatalf("zero rate: got %d, want 0", got)
	}
}
