package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"presenter-video-pipeline/internal/domain"
	"presenter-video-pipeline/internal/domain/model"
	"presenter-video-pipeline/internal/domain/ports/adapter"
	"presenter-video-pipeline/internal/domain/ports/repository"
	"presenter-video-pipeline/internal/infra/logging"
	"presenter-video-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ PipelineUseCase = (*pipelineUC)(nil)

// PipelineUseCase is the orchestrator binding synthesis, asset upload,
// render submission, polling, migration and optional compositing into
// one client-driven pipeline. There is no long-lived worker: callers
// invoke Advance repeatedly and each call performs at most one unit of
// work for the job's current phase.
type PipelineUseCase interface {
	CreateJob(ctx context.Context, params CreateJobParams) (*model.View, error)
	Advance(ctx context.Context, jobID string) (*model.View, error)
	Get(ctx context.Context, jobID string) (*model.View, error)
	List(ctx context.Context, phase model.Phase, limit int) ([]*model.View, error)
}

// CreateJobParams is the validated creation input.
type CreateJobParams struct {
	ID             string // optional; empty means system-assigned
	ScriptContent  string
	Synthesis      model.SynthesisParams
	Avatar         model.AvatarParams
	WantsComposite bool
}

// AdvanceLocker serializes advances per job across process instances.
// Best-effort: correctness still rests on the ledger's conditional write.
type AdvanceLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// SubmitLimiter enforces the shared submission budget toward rate-limited
// providers. A denial is surfaced as a retryable rate-limit error.
type SubmitLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Settings carries the pipeline's tunables from config.
type Settings struct {
	AdvanceTimeout   time.Duration
	CompositeTimeout time.Duration
	DefaultVoice     string
	SampleRate       int
	BytesPerSample   int
	HeaderBytes      int
	LockTTL          time.Duration
	FarmConfigured   bool
}

const defaultPrompt = "A person speaking directly to the camera in a neutral studio"

type pipelineUC struct {
	jobs     repository.MediaJobRepository
	speech   adapter.SpeechSynthesizer
	avatar   adapter.AvatarProvider
	farm     adapter.RenderFarm
	storage  adapter.ObjectStorage
	migrator *Migrator
	locker   AdvanceLocker
	limiter  SubmitLimiter
	retry    RetryPolicy
	client   *http.Client
	settings Settings
	log      *zerolog.Logger
}

// NewPipelineUseCase wires the coordinator. farm may be nil when
// compositing is not configured; locker and limiter may be nil.
func NewPipelineUseCase(
	jobs repository.MediaJobRepository,
	speech adapter.SpeechSynthesizer,
	avatar adapter.AvatarProvider,
	farm adapter.RenderFarm,
	storage adapter.ObjectStorage,
	migrator *Migrator,
	locker AdvanceLocker,
	limiter SubmitLimiter,
	settings Settings,
	log *zerolog.Logger,
) *pipelineUC {
	if settings.AdvanceTimeout <= 0 {
		settings.AdvanceTimeout = 120 * time.Second
	}
	if settings.CompositeTimeout <= 0 {
		settings.CompositeTimeout = 300 * time.Second
	}
	if settings.LockTTL <= 0 {
		settings.LockTTL = 5 * time.Minute
	}
	return &pipelineUC{
		jobs:     jobs,
		speech:   speech,
		avatar:   avatar,
		farm:     farm,
		storage:  storage,
		migrator: migrator,
		locker:   locker,
		limiter:  limiter,
		retry:    NewSubmissionRetryPolicy(),
		client:   &http.Client{Timeout: 60 * time.Second},
		settings: settings,
		log:      log,
	}
}

func (p *pipelineUC) CreateJob(ctx context.Context, params CreateJobParams) (*model.View, error) {
	if strings.TrimSpace(params.ScriptContent) == "" {
		return nil, domain.NewValidationError("script_content", "must not be empty")
	}
	if params.Avatar.CharacterHandle == "" && params.Avatar.ImageURL == "" {
		return nil, domain.NewValidationError("avatar_params", "either character_handle or image_url is required")
	}
	if params.WantsComposite && !p.settings.FarmConfigured {
		return nil, domain.NewValidationError("wants_composite", "compositing renderer is not configured")
	}
	if params.Synthesis.Voice == "" {
		params.Synthesis.Voice = p.settings.DefaultVoice
	}

	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	job := model.NewMediaJob(id, params.ScriptContent, params.Synthesis, params.Avatar, params.WantsComposite)
	if err := p.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	metrics.IncJobCreated(job.WantsComposite)
	p.log.Info().Str("job_id", job.ID).Bool("composite", job.WantsComposite).Msg("job created")
	return job.Snapshot(), nil
}

func (p *pipelineUC) Get(ctx context.Context, jobID string) (*model.View, error) {
	job, err := p.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job.Snapshot(), nil
}

func (p *pipelineUC) List(ctx context.Context, phase model.Phase, limit int) ([]*model.View, error) {
	jobs, err := p.jobs.List(ctx, phase, limit)
	if err != nil {
		return nil, err
	}
	views := make([]*model.View, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.Snapshot())
	}
	return views, nil
}

// Advance performs the next unit of work for the job. Terminal jobs
// no-op and return the current view, so repeated polling is idempotent.
func (p *pipelineUC) Advance(ctx context.Context, jobID string) (*model.View, error) {
	ctx = logging.WithJobID(ctx, jobID)
	defer logging.TraceDuration(logging.With(ctx, p.log), "PipelineUC.Advance")()

	job, err := p.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Phase.Terminal() && !(job.Phase == model.PhaseComplete && job.WantsComposite) {
		return job.Snapshot(), nil
	}

	if p.locker != nil {
		token, err := p.locker.TryLock(ctx, "advance:"+jobID, p.settings.LockTTL)
		if err != nil {
			// Another caller holds the job; their advance counts for us.
			return job.Snapshot(), nil
		}
		defer func() { _ = p.locker.Unlock(context.Background(), "advance:"+jobID, token) }()
	}

	phaseBefore := job.Phase
	timeout := p.settings.AdvanceTimeout
	if compositePhase(phaseBefore) {
		timeout = p.settings.CompositeTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err = p.step(stepCtx, job)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveAdvance(string(phaseBefore), outcome, time.Since(start))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || stepCtx.Err() != nil {
			// The call failed, not the job: phase untouched, retry safe.
			return nil, &domain.TimeoutError{Phase: string(phaseBefore)}
		}
		return p.failJob(ctx, jobID, phaseBefore, err)
	}
	return job.Snapshot(), nil
}

// failJob downgrades the job to failed while preserving outputs already
// durably captured. The conditional write keeps a concurrent advance
// from being clobbered.
func (p *pipelineUC) failJob(ctx context.Context, jobID string, expected model.Phase, cause error) (*model.View, error) {
	job, err := p.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("phase %s: %v", expected, cause)
	job.Fail(msg)
	ok, err := p.jobs.WriteIfPhase(ctx, job, expected)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race; also retry against the transient claim phases
		// the failed unit may have written before erroring.
		fresh, ferr := p.jobs.FindByID(ctx, jobID)
		if ferr != nil {
			return nil, ferr
		}
		if !fresh.Phase.Terminal() {
			at := fresh.Phase
			fresh.Fail(msg)
			if ok2, _ := p.jobs.WriteIfPhase(ctx, fresh, at); !ok2 {
				fresh, _ = p.jobs.FindByID(ctx, jobID)
			}
		}
		job = fresh
	}
	metrics.IncJobTerminal("failed")
	p.log.Error().Str("job_id", jobID).Str("phase", string(expected)).Err(cause).Msg("job failed")
	return job.Snapshot(), nil
}

func (p *pipelineUC) step(ctx context.Context, job *model.MediaJob) error {
	switch job.Phase {
	case model.PhaseCreated, model.PhaseSynthesizing:
		return p.stepSynthesize(ctx, job)
	case model.PhaseUploadingAssets:
		return p.stepUploadAndSubmit(ctx, job)
	case model.PhaseSubmitted, model.PhaseRendering:
		return p.stepPollAvatar(ctx, job)
	case model.PhaseMigrating:
		return p.stepMigrateFinal(ctx, job)
	case model.PhaseComplete:
		// Reached only when compositing was requested at creation.
		return p.stepQueueComposite(ctx, job)
	case model.PhaseCompositePending:
		return p.stepSubmitComposite(ctx, job)
	case model.PhaseCompositeSubmitted, model.PhaseCompositeRendering:
		return p.stepPollComposite(ctx, job)
	case model.PhaseCompositeMigrating:
		return p.stepMigrateComposite(ctx, job)
	default:
		return fmt.Errorf("no work defined for phase %s", job.Phase)
	}
}

// stepSynthesize turns the script into audio and stages the payload in
// durable storage so the next advance can upload it to the provider.
// A job found in synthesizing is a crashed or timed-out prior claim;
// re-running the synthesis is safe.
func (p *pipelineUC) stepSynthesize(ctx context.Context, job *model.MediaJob) error {
	if job.Phase == model.PhaseCreated {
		claimed := *job
		claimed.Phase = model.PhaseSynthesizing
		ok, err := p.jobs.WriteIfPhase(ctx, &claimed, model.PhaseCreated)
		if err != nil {
			return err
		}
		if !ok {
			return p.refresh(ctx, job)
		}
		job.Phase = model.PhaseSynthesizing
	}

	audio, err := p.speech.Synthesize(ctx, job.ScriptContent, job.Synthesis.Voice, job.Synthesis.Speed)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("audio/%s/voice.wav", job.ID)
	if err := p.storage.Put(ctx, key, bytes.NewReader(audio), int64(len(audio)), "audio/wav"); err != nil {
		return fmt.Errorf("stage audio: %w", err)
	}

	job.StagedAudioKey = key
	job.AudioAsset = &model.AudioAsset{
		SizeBytes: int64(len(audio)),
		DurationMS: EstimateAudioDurationMS(
			len(audio), p.settings.SampleRate, p.settings.BytesPerSample, p.settings.HeaderBytes),
	}
	job.Phase = model.PhaseUploadingAssets
	job.BumpProgress(10)
	return p.commit(ctx, job, model.PhaseSynthesizing)
}

// stepUploadAndSubmit registers the staged audio (and the character
// image, when one was given by URL) with the avatar provider, then
// submits the render. Submission is non-idempotent: the ledger phase is
// the guard against running it twice.
func (p *pipelineUC) stepUploadAndSubmit(ctx context.Context, job *model.MediaJob) error {
	rc, _, err := p.storage.Get(ctx, job.StagedAudioKey)
	if err != nil {
		return fmt.Errorf("read staged audio: %w", err)
	}
	audio, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read staged audio: %w", err)
	}

	audioID, err := p.avatar.CreateAsset(ctx, "job-"+job.ID+"-audio", adapter.AssetAudio)
	if err != nil {
		return err
	}
	if err := p.avatar.UploadAsset(ctx, audioID, audio, "voice.wav"); err != nil {
		return err
	}

	characterID := job.Avatar.CharacterHandle
	if characterID == "" {
		img, err := p.fetch(ctx, job.Avatar.ImageURL)
		if err != nil {
			return fmt.Errorf("fetch character image: %w", err)
		}
		characterID, err = p.avatar.CreateAsset(ctx, "job-"+job.ID+"-image", adapter.AssetImage)
		if err != nil {
			return err
		}
		if err := p.avatar.UploadAsset(ctx, characterID, img, "character.png"); err != nil {
			return err
		}
	}

	prompt := job.Avatar.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	req := adapter.RenderRequest{
		AudioAssetID:     audioID,
		CharacterAssetID: characterID,
		Resolution:       job.Avatar.Resolution,
		AspectRatio:      job.Avatar.AspectRatio,
		Prompt:           prompt,
	}

	var externalID string
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		if err := p.allowSubmit(ctx, "submit:avatar"); err != nil {
			return err
		}
		id, err := p.avatar.SubmitRender(ctx, req)
		if err != nil {
			return err
		}
		externalID = id
		return nil
	})
	if err != nil {
		return err
	}

	if job.AudioAsset == nil {
		job.AudioAsset = &model.AudioAsset{}
	}
	job.AudioAsset.Handle = audioID
	job.ExternalRenderID = externalID
	job.Phase = model.PhaseSubmitted
	job.BumpProgress(25)
	return p.commit(ctx, job, model.PhaseUploadingAssets)
}

func (p *pipelineUC) stepPollAvatar(ctx context.Context, job *model.MediaJob) error {
	st, err := p.avatar.GetStatus(ctx, job.ExternalRenderID)
	if err != nil {
		return err
	}
	from := job.Phase
	switch st.State {
	case adapter.StatePending:
		job.BumpProgress(p.stageOneProgress(job, st.Progress))
	case adapter.StateProcessing:
		job.Phase = model.PhaseRendering
		job.BumpProgress(p.stageOneProgress(job, st.Progress))
	case adapter.StateComplete:
		if st.OutputURL == "" {
			return &domain.ProviderError{Provider: "avatar", Body: "status complete without output url"}
		}
		job.PendingOutputURL = st.OutputURL
		job.Phase = model.PhaseMigrating
		job.BumpProgress(p.stageOneProgress(job, 100))
	case adapter.StateError:
		return &domain.ProviderError{Provider: "avatar", Body: st.ErrorMessage}
	}
	return p.commit(ctx, job, from)
}

func (p *pipelineUC) stepMigrateFinal(ctx context.Context, job *model.MediaJob) error {
	var known int64
	if job.AudioAsset != nil {
		known = job.AudioAsset.DurationMS
	}
	out, err := p.migrator.Migrate(ctx, job.ID, "final", job.PendingOutputURL, known)
	if err != nil {
		return err
	}
	metrics.AddMigratedBytes("final", out.SizeBytes)

	job.FinalOutput = out
	job.PendingOutputURL = ""
	if job.WantsComposite {
		job.Phase = model.PhaseCompositePending
		job.BumpProgress(50)
	} else {
		job.Phase = model.PhaseComplete
		job.BumpProgress(100)
		metrics.IncJobTerminal("complete")
	}
	return p.commit(ctx, job, model.PhaseMigrating)
}

// stepQueueComposite covers a legacy record migrated while sitting in
// complete with compositing still requested; it simply moves the job
// onto the composite branch.
func (p *pipelineUC) stepQueueComposite(ctx context.Context, job *model.MediaJob) error {
	if !job.WantsComposite {
		return nil
	}
	job.Phase = model.PhaseCompositePending
	return p.commit(ctx, job, model.PhaseComplete)
}

func (p *pipelineUC) stepSubmitComposite(ctx context.Context, job *model.MediaJob) error {
	if p.farm == nil {
		return domain.ErrNotConfigured
	}
	if job.FinalOutput == nil {
		return fmt.Errorf("composite requested without a migrated first pass")
	}

	slides := DeriveSlides(job.ScriptContent)
	ticker := DeriveTicker(job.ScriptContent)
	req := adapter.CompositeRequest{
		JobID:    job.ID,
		VideoURL: job.FinalOutput.URL,
		Title:    slideTitle(job.ScriptContent),
		Slides:   slides,
		Ticker:   ticker,
	}

	var handle adapter.CompositeHandle
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		if err := p.allowSubmit(ctx, "submit:composite"); err != nil {
			return err
		}
		h, err := p.farm.SubmitComposite(ctx, req)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return err
	}

	job.CompositeRenderID = handle.RenderID
	job.CompositeBucket = handle.Bucket
	job.Phase = model.PhaseCompositeSubmitted
	job.BumpProgress(55)
	return p.commit(ctx, job, model.PhaseCompositePending)
}

func (p *pipelineUC) stepPollComposite(ctx context.Context, job *model.MediaJob) error {
	st, err := p.farm.GetProgress(ctx, adapter.CompositeHandle{
		RenderID: job.CompositeRenderID,
		Bucket:   job.CompositeBucket,
	})
	if err != nil {
		return err
	}
	from := job.Phase
	switch st.State {
	case adapter.StatePending:
		job.BumpProgress(stageTwoProgress(st.Progress))
	case adapter.StateProcessing:
		job.Phase = model.PhaseCompositeRendering
		job.BumpProgress(stageTwoProgress(st.Progress))
	case adapter.StateComplete:
		if st.OutputURL == "" {
			return &domain.ProviderError{Provider: "renderfarm", Body: "render done without output file"}
		}
		job.PendingOutputURL = st.OutputURL
		job.Phase = model.PhaseCompositeMigrating
		job.BumpProgress(90)
	case adapter.StateError:
		return &domain.ProviderError{Provider: "renderfarm", Body: st.ErrorMessage}
	}
	return p.commit(ctx, job, from)
}

func (p *pipelineUC) stepMigrateComposite(ctx context.Context, job *model.MediaJob) error {
	var known int64
	if job.FinalOutput != nil {
		known = job.FinalOutput.DurationMS
	}
	out, err := p.migrator.Migrate(ctx, job.ID, "composite", job.PendingOutputURL, known)
	if err != nil {
		return err
	}
	metrics.AddMigratedBytes("composite", out.SizeBytes)

	job.CompositeOutput = out
	job.PendingOutputURL = ""
	job.Phase = model.PhaseCompositeComplete
	job.BumpProgress(100)
	metrics.IncJobTerminal("composite_complete")
	return p.commit(ctx, job, model.PhaseCompositeMigrating)
}

// commit conditionally writes the mutated job. A lost race is not an
// error: the concurrent winner's state is reloaded into job so the
// caller returns a truthful view.
func (p *pipelineUC) commit(ctx context.Context, job *model.MediaJob, expected model.Phase) error {
	job.UpdatedAt = time.Now().UTC()
	ok, err := p.jobs.WriteIfPhase(ctx, job, expected)
	if err != nil {
		return err
	}
	if !ok {
		return p.refresh(ctx, job)
	}
	return nil
}

func (p *pipelineUC) refresh(ctx context.Context, job *model.MediaJob) error {
	fresh, err := p.jobs.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	*job = *fresh
	return nil
}

// allowSubmit consults the shared submission budget. A denied slot is
// reported as a 429 provider error so the retry policy backs off.
func (p *pipelineUC) allowSubmit(ctx context.Context, key string) error {
	if p.limiter == nil {
		return nil
	}
	ok, err := p.limiter.Allow(ctx, key)
	if err != nil {
		// Budget store unreachable: do not block paid provider work.
		p.log.Warn().Err(err).Str("key", key).Msg("submit limiter unavailable")
		return nil
	}
	if !ok {
		return &domain.ProviderError{Provider: "limiter", Status: 429, Body: "local submission budget exhausted"}
	}
	return nil
}

func (p *pipelineUC) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &domain.ProviderError{Provider: "image source", Status: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}

// stageOneProgress maps normalized provider progress into the avatar
// stage's share of the overall bar. Composite jobs reserve the upper
// half for the second pass.
func (p *pipelineUC) stageOneProgress(job *model.MediaJob, pollPct int) int {
	if job.WantsComposite {
		return 25 + pollPct*20/100 // 25..45
	}
	return 25 + pollPct*65/100 // 25..90
}

func stageTwoProgress(pollPct int) int {
	v := 55 + pollPct*35/100 // 55..90
	if v > 90 {
		v = 90
	}
	return v
}

func compositePhase(p model.Phase) bool {
	switch p {
	case model.PhaseCompositePending, model.PhaseCompositeSubmitted,
		model.PhaseCompositeRendering, model.PhaseCompositeMigrating:
		return true
	}
	return false
}
