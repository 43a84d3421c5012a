package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/model"
	"presenter-video-pipeline/internal/domain/ports/adapter"
)

// memJobRepo is a small in-memory job ledger used by unit tests.
type memJobRepo struct {
	mu    sync.Mutex
	store map[string]*model.MediaJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.MediaJob)}
}

func (m *memJobRepo) Save(ctx context.Context, job *model.MediaJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, id string) (*model.MediaJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) WriteIfPhase(ctx context.Context, job *model.MediaJob, expected model.Phase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[job.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if cur.Phase != expected {
		return false, nil
	}
	cp := *job
	m.store[job.ID] = &cp
	return true, nil
}

func (m *memJobRepo) List(ctx context.Context, phase model.Phase, limit int) ([]*model.MediaJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MediaJob
	for _, j := range m.store {
		if phase != "" && j.Phase != phase {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

// fakeSpeech returns a deterministic WAV-shaped payload.
type fakeSpeech struct {
	payloadLen int
	err        error
	calls      int
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	n := f.payloadLen
	if n == 0 {
		n = 44 + 88200 // one second at 44.1kHz/16-bit
	}
	return bytes.Repeat([]byte{0xAB}, n), nil
}

// fakeAvatar scripts the provider: submissions count attempts and the
// status queue is consumed one poll at a time.
type fakeAvatar struct {
	mu          sync.Mutex
	assets      map[string]adapter.AssetKind
	uploads     map[string][]byte
	submitErrs  []error // errors before a successful submission
	submitCalls int
	statuses    []adapter.RenderStatus
	statusErr   error
	polls       int
}

func newFakeAvatar() *fakeAvatar {
	return &fakeAvatar{
		assets:  make(map[string]adapter.AssetKind),
		uploads: make(map[string][]byte),
	}
}

func (f *fakeAvatar) CreateAsset(ctx context.Context, name string, kind adapter.AssetKind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("asset-%d", len(f.assets)+1)
	f.assets[id] = kind
	return id, nil
}

func (f *fakeAvatar) UploadAsset(ctx context.Context, assetID string, data []byte, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.assets[assetID]; !ok {
		return &domain.ProviderError{Provider: "avatar", Body: "upload before create"}
	}
	f.uploads[assetID] = data
	return nil
}

func (f *fakeAvatar) SubmitRender(ctx context.Context, req adapter.RenderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return "", err
	}
	return "ext-render-1", nil
}

func (f *fakeAvatar) GetStatus(ctx context.Context, externalID string) (adapter.RenderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return adapter.RenderStatus{}, f.statusErr
	}
	if len(f.statuses) == 0 {
		return adapter.RenderStatus{State: adapter.StatePending}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	f.polls++
	return st, nil
}

// fakeFarm mirrors fakeAvatar for the compositing stage.
type fakeFarm struct {
	mu          sync.Mutex
	submitErrs  []error
	submitCalls int
	lastReq     adapter.CompositeRequest
	statuses    []adapter.RenderStatus
}

func (f *fakeFarm) SubmitComposite(ctx context.Context, req adapter.CompositeRequest) (adapter.CompositeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastReq = req
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return adapter.CompositeHandle{}, err
	}
	return adapter.CompositeHandle{RenderID: "farm-render-1", Bucket: "farm-bucket"}, nil
}

func (f *fakeFarm) GetProgress(ctx context.Context, handle adapter.CompositeHandle) (adapter.RenderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return adapter.RenderStatus{State: adapter.StatePending}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (m *memStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (m *memStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.local/" + key + "?sig=test", nil
}
