package adapter

// RenderState is the shared four-value progress vocabulary every
// provider-specific status maps into.
type RenderState string

const (
	StatePending    RenderState = "pending"
	StateProcessing RenderState = "processing"
	StateComplete   RenderState = "complete"
	StateError      RenderState = "error"
)

// RenderStatus is a normalized poll result. Progress is 0-100; a complete
// status caps it at 90 so a client never sees 100% before a durable,
// retrievable URL exists (the last 10% belongs to storage migration).
type RenderStatus struct {
	State        RenderState
	Progress     int
	OutputURL    string
	ErrorMessage string
}

// NormalizeProgress rescales a provider progress value into 0-100.
// Providers report either fractions (0-1) or percentages; anything at or
// below 1.0 is treated as a fraction.
func NormalizeProgress(raw float64) int {
	if raw <= 1.0 {
		raw *= 100
	}
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return int(raw)
}

// NormalizeState maps a provider-specific status word into the shared
// vocabulary. Unrecognized words count as processing: the job exists and
// is not finished, which is the only safe assumption.
func NormalizeState(providerStatus string) RenderState {
	switch providerStatus {
	case "queued", "pending", "waiting", "created":
		return StatePending
	case "processing", "in_progress", "rendering", "started", "running", "generating":
		return StateProcessing
	case "complete", "completed", "done", "finished", "succeeded", "success":
		return StateComplete
	case "error", "failed", "canceled", "cancelled":
		return StateError
	default:
		return StateProcessing
	}
}
