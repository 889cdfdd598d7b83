// Package window splits text into bounded, contiguous character windows.
//
// Offsets and lengths are in runes, so a window never splits a multi-byte
// character. Windows are produced lazily and cover the text with no gaps.
package window

import (
	"iter"
	"unicode"
	"unicode/utf8"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
)

// Planner produces windows of at most MaxChars runes.
type Planner struct {
	maxChars      int
	boundaryAware bool
}

// Option configures a Planner.
type Option func(*Planner)

// WithBoundaryAware prefers cutting after a paragraph break, sentence end or
// newline when one falls in the second half of a full-length window.
func WithBoundaryAware() Option {
	return func(p *Planner) {
		p.boundaryAware = true
	}
}

// NewPlanner returns a planner for the given buffer size.
func NewPlanner(maxChars int, opts ...Option) (*Planner, error) {
	if maxChars <= 0 {
		return nil, errs.Configurationf("window planner", "max char buffer must be positive, got %d", maxChars)
	}
	p := &Planner{maxChars: maxChars}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// MaxChars returns the configured buffer size.
func (p *Planner) MaxChars() int {
	return p.maxChars
}

// Windows yields the windows of text in order. Each range over the
// returned sequence re-walks the text from the start.
func (p *Planner) Windows(text string) iter.Seq[models.TextWindow] {
	return func(yield func(models.TextWindow) bool) {
		runes := []rune(text)
		start := 0
		for index := 0; start < len(runes); index++ {
			end := min(start+p.maxChars, len(runes))
			if p.boundaryAware && end < len(runes) {
				end = boundaryCut(runes, start, end)
			}
			w := models.TextWindow{
				Index: index,
				Start: start,
				End:   end,
				Text:  string(runes[start:end]),
			}
			if !yield(w) {
				return
			}
			start = end
		}
	}
}

// Collect materializes every window of text.
func (p *Planner) Collect(text string) []models.TextWindow {
	var windows []models.TextWindow
	for w := range p.Windows(text) {
		windows = append(windows, w)
	}
	return windows
}

// Count returns the number of windows text splits into.
func (p *Planner) Count(text string) int {
	if !p.boundaryAware {
		n := utf8.RuneCountInString(text)
		return (n + p.maxChars - 1) / p.maxChars
	}
	count := 0
	for range p.Windows(text) {
		count++
	}
	return count
}

// boundaryCut picks a cut point in (start+half, end] or returns end.
func boundaryCut(runes []rune, start, end int) int {
	floor := start + (end-start)/2

	// paragraph break
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// sentence end followed by whitespace
	for i := end - 1; i > floor; i-- {
		if unicode.IsSpace(runes[i]) && isSentenceEnd(runes[i-1]) {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
