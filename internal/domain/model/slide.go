package model

// Slide is one derived overlay card with its timing on the composite
// timeline. Decks are ephemeral: derived per compositing submission,
// never persisted.
type Slide struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	StartSeconds float64 `json:"start_seconds"`
	DurationSecs float64 `json:"duration_seconds"`
}
