package letter

import (
	"strings"

	"rttline/internal/domain"
)

// DefaultWindow is the number of characters inspected either side of a
// keyword when deciding its temporal class.
const DefaultWindow = 150

// Options configures an Extractor.
type Options struct {
	Window        int
	PastMarkers   []string
	FutureMarkers []string
}

// DefaultPastMarkers are phrases that describe completed activity.
var DefaultPastMarkers = []string{
	"was performed", "were performed", "results", "showed", "revealed",
	"completed", "already booked", "has been booked", "has had", "had a",
	"was done", "was carried out", "underwent", "confirmed",
	"i have written", "has been added", "was added", "was referred",
	"has been referred", "was started", "was given",
}

// DefaultFutureMarkers are request and plan phrases.
var DefaultFutureMarkers = []string{
	"please arrange", "please book", "please could", "please add",
	"please refer", "recommend", "needs to", "need to", "plan:",
	"i will arrange", "i have requested", "i will request", "we will",
	"i will", "to be arranged", "should be", "would benefit from",
	"will be listed", "i would like",
}

// Classifier decides the temporal class of a keyword occurrence.
type Classifier struct {
	window int
	past   []string
	future []string
}

// NewClassifier builds a Classifier, falling back to defaults for unset
// options.
func NewClassifier(opts Options) *Classifier {
	c := &Classifier{window: opts.Window, past: normalize(opts.PastMarkers), future: normalize(opts.FutureMarkers)}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if len(c.past) == 0 {
		c.past = DefaultPastMarkers
	}
	if len(c.future) == 0 {
		c.future = DefaultFutureMarkers
	}
	return c
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.TrimSpace(lowerASCII(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Classify inspects lower[start-window : end+window]. The marker closest to
// the keyword decides; a tie goes to past.
func (c *Classifier) Classify(lower string, start, end int) domain.TemporalClass {
	ws := start - c.window
	if ws < 0 {
		ws = 0
	}
	we := end + c.window
	if we > len(lower) {
		we = len(lower)
	}
	window := lower[ws:we]
	past := nearest(window, ws, start, end, c.past)
	future := nearest(window, ws, start, end, c.future)
	switch {
	case past < 0 && future < 0:
		return domain.Unclear
	case future < 0:
		return domain.Past
	case past < 0:
		return domain.Future
	case future < past:
		return domain.Future
	default:
		return domain.Past
	}
}

// nearest returns the smallest distance between any marker occurrence and
// the keyword span, or -1 when no marker occurs in the window.
func nearest(window string, offset, start, end int, markers []string) int {
	best := -1
	for _, m := range markers {
		from := 0
		for {
			i := strings.Index(window[from:], m)
			if i < 0 {
				break
			}
			ms := offset + from + i
			me := ms + len(m)
			d := 0
			switch {
			case me <= start:
				d = start - me
			case ms >= end:
				d = ms - end
			}
			if best < 0 || d < best {
				best = d
			}
			from += i + 1
		}
	}
	return best
}

// lowerASCII lowercases ASCII letters only so byte offsets stay aligned with
// the original text.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
