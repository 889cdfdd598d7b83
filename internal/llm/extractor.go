// Package llm is the seam between the extraction pipeline and a language
// model backend. Backends accept a window of text plus a prompt and worked
// examples, and return labeled extractions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Epistemic-Technology/docextract/models"
)

// Request is one extraction call over one window of text.
type Request struct {
	Text                 string
	PromptDescription    string
	Examples             []models.ExtractionExample
	Temperature          float64
	FenceOutput          bool
	UseSchemaConstraints bool
}

// Extractor is the extraction capability. Implementations must be safe for
// concurrent use; every failure is reported as an errs.ModelCall error.
type Extractor interface {
	Extract(ctx context.Context, req Request) ([]models.Extraction, error)
}

// Pinger is implemented by backends that can check reachability without
// running an extraction.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, req Request) ([]models.Extraction, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, req Request) ([]models.Extraction, error) {
	return f(ctx, req)
}

var errNoCandidates = errors.New("no candidates in response")

// StatusError is a non-success HTTP answer from a backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Backend, e.StatusCode, e.Body)
}

// Close releases backend resources when the extractor holds any.
func Close(ext Extractor) error {
	if c, ok := ext.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
