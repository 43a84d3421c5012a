package model

import "testing"

func TestPhaseTerminal(t *testing.T) {
	terminal := map[Phase]bool{
		PhaseComplete:          true,
		PhaseCompositeComplete: true,
		PhaseFailed:            true,
	}
	all := []Phase{
		PhaseCreated, PhaseSynthesizing, PhaseUploadingAssets, PhaseSubmitted,
		PhaseRendering, PhaseMigrating, PhaseComplete, PhaseCompositePending,
		PhaseCompositeSubmitted, PhaseCompositeRendering, PhaseCompositeMigrating,
		PhaseCompositeComplete, PhaseFailed,
	}
	for _, p := range all {
		if got := p.Terminal(); got != terminal[p] {
			t.Errorf("%s.Terminal() = %v, want %v", p, got, terminal[p])
		}
	}
}

func TestBumpProgressMonotonic(t *testing.T) {
	j := NewMediaJob("j1", "script", SynthesisParams{}, AvatarParams{}, false)

	j.BumpProgress(25)
	if j.ProgressPercent != 25 {
		t.Fatalf("progress = %d, want 25", j.ProgressPercent)
	}
	j.BumpProgress(10)
	if j.ProgressPercent != 25 {
		t.Fatalf("progress lowered to %d", j.ProgressPercent)
	}
	j.BumpProgress(250)
	if j.ProgressPercent != 100 {
		t.Fatalf("progress = %d, want cap at 100", j.ProgressPercent)
	}
}

func TestFailKeepsCapturedOutputs(t *testing.T) {
	j := NewMediaJob("j1", "script", SynthesisParams{}, AvatarParams{}, true)
	j.FinalOutput = &Output{Key: "videos/j1/final.mp4", URL: "https://s/x"}

	j.Fail("compositing broke")
	if j.Phase != PhaseFailed {
		t.Fatalf("phase = %s", j.Phase)
	}
	if j.ErrorMessage != "compositing broke" {
		t.Fatalf("errorMessage = %q", j.ErrorMessage)
	}
	if j.FinalOutput == nil {
		t.Fatal("finished first pass must survive a compositing failure")
	}
}

func TestSnapshot(t *testing.T) {
	j := NewMediaJob("j1", "script", SynthesisParams{Voice: "v1"}, AvatarParams{CharacterHandle: "c1"}, false)
	j.Phase = PhaseComplete
	j.ProgressPercent = 100
	j.FinalOutput = &Output{URL: "https://s/x"}

	v := j.Snapshot()
	if v.ID != "j1" || v.Phase != PhaseComplete || v.ProgressPercent != 100 {
		t.Fatalf("view = %+v", v)
	}
	if v.FinalOutput == nil || v.FinalOutput.URL != "https://s/x" {
		t.Fatalf("finalOutput = %+v", v.FinalOutput)
	}
	if v.CompositeOutput != nil {
		t.Fatal("compositeOutput must be absent")
	}
}
