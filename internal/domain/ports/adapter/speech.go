package adapter

import "context"

// SpeechSynthesizer is the port for the text-to-speech provider.
// Synthesis failures are content or quota problems, not transient;
// implementations must not retry.
type SpeechSynthesizer interface {
	// Synthesize returns the raw audio payload for the script text.
	// speed <= 0 means provider default.
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}
