package usecase

import (
	"strings"
	"unicode/utf8"

	"presenter-video-pipeline/internal/domain/model"
)

const (
	maxSlides        = 5
	minParagraphLen  = 50
	readingWPM       = 150.0
	minSlideSeconds  = 5.0
	maxSlideSeconds  = 15.0
	slideGapSeconds  = 2.0
	slideLeadSeconds = 5.0

	tickerSeparator   = "  •  "
	tickerMinSentence = 20
	tickerSentences   = 3
)

// DeriveSlides heuristically segments script text into a bounded slide
// deck with timing. Deterministic: the same script always yields the
// same deck.
func DeriveSlides(script string) []model.Slide {
	paragraphs := splitParagraphs(script)

	slides := make([]model.Slide, 0, maxSlides)
	start := slideLeadSeconds
	for _, p := range paragraphs {
		if len(slides) == maxSlides {
			break
		}
		if len(p) < minParagraphLen {
			continue
		}
		dur := readingSeconds(p)
		slides = append(slides, model.Slide{
			ID:           len(slides) + 1,
			Title:        slideTitle(p),
			Content:      excerpt(p, 200),
			StartSeconds: start,
			DurationSecs: dur,
		})
		start += dur + slideGapSeconds
	}
	return slides
}

// DeriveTicker builds the scrolling ticker line from the first few
// substantial sentences of the script.
func DeriveTicker(script string) string {
	picked := make([]string, 0, tickerSentences)
	for _, s := range splitSentences(script) {
		if len(s) <= tickerMinSentence {
			continue
		}
		picked = append(picked, s)
		if len(picked) == tickerSentences {
			break
		}
	}
	return strings.Join(picked, tickerSeparator)
}

func splitParagraphs(script string) []string {
	raw := strings.Split(strings.ReplaceAll(script, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\n", " "))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	begin := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(text[begin : i+1])
			if s != "" {
				out = append(out, s)
			}
			begin = i + 1
		}
	}
	if rest := strings.TrimSpace(text[begin:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// readingSeconds converts paragraph word count into display time at an
// assumed reading speed, clamped to the slide duration window.
func readingSeconds(p string) float64 {
	words := len(strings.Fields(p))
	secs := float64(words) / readingWPM * 60.0
	if secs < minSlideSeconds {
		return minSlideSeconds
	}
	if secs > maxSlideSeconds {
		return maxSlideSeconds
	}
	return secs
}

func slideTitle(p string) string {
	for _, s := range splitSentences(p) {
		return excerpt(s, 60)
	}
	return excerpt(p, 60)
}

// excerpt truncates at a word boundary within max bytes, never splitting
// a multibyte rune.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
