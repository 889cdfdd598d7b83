package models

import (
	"fmt"
	"strings"
)

// Document is the plain-text rendition of a fetched source.
type Document struct {
	Source string   `json:"source"`
	Type   string   `json:"type,omitempty"`
	Pages  []string `json:"pages,omitempty"`
}

// FullText concatenates the pages in read order. A newline is inserted
// between pages that do not already end with one so words never fuse
// across a page break.
func (d *Document) FullText() string {
	var b strings.Builder
	for i, page := range d.Pages {
		if i > 0 && !strings.HasSuffix(d.Pages[i-1], "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(page)
	}
	return b.String()
}

// TextWindow is a contiguous slice of the full text. Start and End are
// rune offsets into the original text, half-open.
type TextWindow struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Len returns the window length in characters.
func (w TextWindow) Len() int {
	return w.End - w.Start
}

// CharInterval locates an extraction in full-document rune coordinates.
type CharInterval struct {
	Start int `json:"start_pos"`
	End   int `json:"end_pos"`
}

// Overlaps reports whether two half-open intervals share at least one character.
func (c CharInterval) Overlaps(other CharInterval) bool {
	return c.Start < other.End && other.Start < c.End
}

// Extraction is one labeled unit of structured output.
type Extraction struct {
	Class      string            `json:"extraction_class"`
	Text       string            `json:"extraction_text"`
	Attributes map[string]string `json:"attributes"`
	Interval   *CharInterval     `json:"char_interval,omitempty"`
}

// NonEmptyAttributes counts attributes with a non-blank value.
func (e Extraction) NonEmptyAttributes() int {
	n := 0
	for _, v := range e.Attributes {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

// ExtractionExample is a worked example used to steer the model.
type ExtractionExample struct {
	Text        string       `json:"text"`
	Extractions []Extraction `json:"extractions"`
}

// Task is the caller-supplied extraction instruction: what to look for and
// worked examples of the expected output.
type Task struct {
	PromptDescription string              `json:"prompt_description"`
	Examples          []ExtractionExample `json:"examples"`
}

// Classes returns the distinct extraction classes used by the examples in
// first-seen order.
func (t Task) Classes() []string {
	seen := make(map[string]bool)
	var classes []string
	for _, ex := range t.Examples {
		for _, e := range ex.Extractions {
			if !seen[e.Class] {
				seen[e.Class] = true
				classes = append(classes, e.Class)
			}
		}
	}
	return classes
}

// PassResult is the output of one pass over one window.
type PassResult struct {
	Window      TextWindow
	Pass        int
	Extractions []Extraction
	Err         error
}

// Tier is one step of a tiered pricing table. Threshold is the exclusive
// upper bound in tokens; zero means unbounded.
type Tier struct {
	Threshold      int     `json:"threshold"`
	RatePerMillion float64 `json:"rate_per_million"`
}

// CostEstimate is an approximate input cost for a text.
type CostEstimate struct {
	WordCount       int     `json:"word_count"`
	EstimatedTokens int     `json:"estimated_tokens"`
	Tier            Tier    `json:"tier"`
	Cost            float64 `json:"cost"`
}

// Display renders the cost rounded to cents. Cost keeps full precision.
func (c CostEstimate) Display() string {
	return fmt.Sprintf("%.2f", c.Cost)
}

// AnnotatedDocument is the persisted result of one extraction run.
type AnnotatedDocument struct {
	ID          string       `json:"document_id"`
	Source      string       `json:"source"`
	Text        string       `json:"text,omitempty"`
	Extractions []Extraction `json:"extractions"`
}

// DocumentInfo is a listing entry for a stored AnnotatedDocument.
type DocumentInfo struct {
	DocumentID      string `json:"document_id"`
	Source          string `json:"source"`
	ExtractionCount int    `json:"extraction_count"`
}
