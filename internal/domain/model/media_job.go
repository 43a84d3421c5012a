package model

import "time"

// Phase is the job's position in the linear pipeline state machine.
type Phase string

const (
	PhaseCreated              Phase = "created"
	PhaseSynthesizing         Phase = "synthesizing"
	PhaseUploadingAssets      Phase = "uploading_assets"
	PhaseSubmitted            Phase = "submitted"
	PhaseRendering            Phase = "rendering"
	PhaseMigrating            Phase = "migrating"
	PhaseComplete             Phase = "complete"
	PhaseCompositePending     Phase = "composite_pending"
	PhaseCompositeSubmitted   Phase = "compositing_submitted"
	PhaseCompositeRendering   Phase = "compositing_rendering"
	PhaseCompositeMigrating   Phase = "compositing_migrating"
	PhaseCompositeComplete    Phase = "composite_complete"
	PhaseFailed               Phase = "failed"
)

// Terminal reports whether no further advance can mutate the job.
// A completed job that still wants compositing is not terminal.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseCompositeComplete || p == PhaseFailed
}

// SynthesisParams select the voice track.
type SynthesisParams struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed,omitempty"`
}

// AvatarParams drive the presenter generation. Exactly one of
// CharacterHandle or ImageURL must be set.
type AvatarParams struct {
	Resolution      string `json:"resolution,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
	CharacterHandle string `json:"character_handle,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// AudioAsset is the provider-side handle for the synthesized voice track.
type AudioAsset struct {
	Handle     string `json:"handle"`
	SizeBytes  int64  `json:"size_bytes"`
	DurationMS int64  `json:"duration_ms"`
}

// Output is a durably stored pipeline result.
type Output struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	DurationMS  int64     `json:"duration_ms"`
	SizeBytes   int64     `json:"size_bytes"`
	CompletedAt time.Time `json:"completed_at"`
}

// MediaJob is one request to turn a script into a presenter video,
// tracked end-to-end by the job ledger. It is mutated exclusively by the
// pipeline coordinator, one phase transition per successful external call.
type MediaJob struct {
	ID             string
	Phase          Phase
	ScriptContent  string
	Synthesis      SynthesisParams
	Avatar         AvatarParams
	WantsComposite bool

	// StagedAudioKey points at the synthesized audio parked in durable
	// storage between the synthesis advance and the asset-upload advance;
	// the ledger never holds raw bytes.
	StagedAudioKey string

	AudioAsset       *AudioAsset
	ExternalRenderID string

	// PendingOutputURL carries the provider's ephemeral output URL from
	// poll completion to the migration advance of the same stage.
	PendingOutputURL string

	CompositeRenderID string
	CompositeBucket   string

	FinalOutput     *Output
	CompositeOutput *Output

	ErrorMessage    string
	ProgressPercent int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewMediaJob(id, script string, synth SynthesisParams, avatar AvatarParams, wantsComposite bool) *MediaJob {
	now := time.Now().UTC()
	return &MediaJob{
		ID:             id,
		Phase:          PhaseCreated,
		ScriptContent:  script,
		Synthesis:      synth,
		Avatar:         avatar,
		WantsComposite: wantsComposite,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// BumpProgress raises the job's progress, never lowering it.
func (j *MediaJob) BumpProgress(pct int) {
	if pct > 100 {
		pct = 100
	}
	if pct > j.ProgressPercent {
		j.ProgressPercent = pct
	}
}

// Fail moves the job to the terminal failed phase. Outputs already
// captured (a finished first pass, for example) are left in place.
func (j *MediaJob) Fail(msg string) {
	j.Phase = PhaseFailed
	j.ErrorMessage = msg
	j.UpdatedAt = time.Now().UTC()
}

// View is the caller-facing snapshot returned by every operation.
type View struct {
	ID              string  `json:"id"`
	Phase           Phase   `json:"phase"`
	ProgressPercent int     `json:"progress_percent"`
	FinalOutput     *Output `json:"final_output,omitempty"`
	CompositeOutput *Output `json:"composite_output,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

func (j *MediaJob) Snapshot() *View {
	return &View{
		ID:              j.ID,
		Phase:           j.Phase,
		ProgressPercent: j.ProgressPercent,
		FinalOutput:     j.FinalOutput,
		CompositeOutput: j.CompositeOutput,
		ErrorMessage:    j.ErrorMessage,
	}
}
