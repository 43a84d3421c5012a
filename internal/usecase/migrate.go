package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/model"
	"presenter-video-pipeline/internal/domain/ports/adapter"
)

// fallbackBitrateBPS sizes a duration estimate when no duration is
// known for a migrated video (roughly 720p H.264).
const fallbackBitrateBPS = 2_000_000

// Migrator streams a provider's ephemeral output into durable storage
// and issues a long-lived signed URL. Keys derive deterministically from
// job and stage, so a repeated attempt overwrites instead of duplicating.
type Migrator struct {
	storage adapter.ObjectStorage
	client  *http.Client
	signTTL time.Duration
}

func NewMigrator(storage adapter.ObjectStorage, signTTL time.Duration) *Migrator {
	return &Migrator{
		storage: storage,
		client:  &http.Client{Timeout: 120 * time.Second},
		signTTL: signTTL,
	}
}

// MigrationKey is the durable-storage key for a job's stage output.
func MigrationKey(jobID, stage string) string {
	return fmt.Sprintf("videos/%s/%s.mp4", jobID, stage)
}

// Migrate downloads providerURL into storage under the job/stage key.
// knownDurationMS of 0 falls back to the fixed-bitrate size heuristic.
// Every failure is returned as a MigrationError retaining providerURL.
func (m *Migrator) Migrate(ctx context.Context, jobID, stage, providerURL string, knownDurationMS int64) (*model.Output, error) {
	out, err := m.migrate(ctx, jobID, stage, providerURL, knownDurationMS)
	if err != nil {
		return nil, &domain.MigrationError{Stage: stage, ProviderURL: providerURL, Err: err}
	}
	return out, nil
}

func (m *Migrator) migrate(ctx context.Context, jobID, stage, providerURL string, knownDurationMS int64) (*model.Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, providerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("download: http %d: %s", resp.StatusCode, string(body))
	}

	key := MigrationKey(jobID, stage)
	size := resp.ContentLength

	var r io.Reader = resp.Body
	if size < 0 {
		// Provider sent no length; buffer so storage gets an exact size.
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		size = int64(len(b))
		r = bytes.NewReader(b)
	}

	if err := m.storage.Put(ctx, key, r, size, "video/mp4"); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	url, err := m.storage.SignedURL(ctx, key, m.signTTL)
	if err != nil {
		return nil, fmt.Errorf("sign url: %w", err)
	}

	duration := knownDurationMS
	if duration <= 0 {
		duration = EstimateVideoDurationMS(size)
	}
	return &model.Output{
		Key:         key,
		URL:         url,
		DurationMS:  duration,
		SizeBytes:   size,
		CompletedAt: time.Now().UTC(),
	}, nil
}

// EstimateVideoDurationMS estimates playback time from byte size at the
// fallback bitrate.
func EstimateVideoDurationMS(sizeBytes int64) int64 {
	if sizeBytes <= 0 {
		return 0
	}
	return sizeBytes * 8 * 1000 / fallbackBitrateBPS
}

// EstimateAudioDurationMS derives playback time for raw PCM audio from
// the payload length: (bytes - header) / (rate * bytesPerSample) * 1000.
func EstimateAudioDurationMS(byteLen, sampleRate, bytesPerSample, headerBytes int) int64 {
	if sampleRate <= 0 || bytesPerSample <= 0 {
		return 0
	}
	data := byteLen - headerBytes
	if data <= 0 {
		return 0
	}
	return int64(data) * 1000 / int64(sampleRate*bytesPerSample)
}
