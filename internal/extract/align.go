package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/Epistemic-Technology/docextract/models"
)

// Align locates each extraction's text verbatim inside the window and sets
// its Interval in full-document rune coordinates. Extractions are matched in
// order: the search resumes after the previous match and falls back to the
// start of the window, so repeated mentions land on successive occurrences.
// Extractions whose text is not found keep a nil Interval.
func Align(w models.TextWindow, exts []models.Extraction) []models.Extraction {
	out := make([]models.Extraction, len(exts))
	cursor := 0
	for i, e := range exts {
		out[i] = e
		if e.Text == "" {
			continue
		}
		idx := -1
		if cursor < len(w.Text) {
			if rel := strings.Index(w.Text[cursor:], e.Text); rel >= 0 {
				idx = cursor + rel
			}
		}
		if idx < 0 {
			idx = strings.Index(w.Text, e.Text)
		}
		if idx < 0 {
			out[i].Interval = nil
			continue
		}
		start := w.Start + utf8.RuneCountInString(w.Text[:idx])
		out[i].Interval = &models.CharInterval{
			Start: start,
			End:   start + utf8.RuneCountInString(e.Text),
		}
		cursor = idx + len(e.Text)
	}
	return out
}
