package avatar

import "presenter-video-pipeline/internal/domain/ports/adapter"

// Normalize maps the provider's status vocabulary and progress scale into
// the shared model. A complete status reports at most 90: the final 10%
// is reserved for storage migration, so a client never sees 100% before
// a durable URL exists.
func Normalize(status string, progress float64, url, errMsg string) adapter.RenderStatus {
	state := adapter.NormalizeState(status)
	pct := adapter.NormalizeProgress(progress)
	if state == adapter.StateComplete && pct > 90 {
		pct = 90
	}
	return adapter.RenderStatus{
		State:        state,
		Progress:     pct,
		OutputURL:    url,
		ErrorMessage: errMsg,
	}
}
