package operations

import (
	"context"
	"errors"
	"fmt"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/cost"
	"github.com/Epistemic-Technology/docextract/internal/documents"
	"github.com/Epistemic-Technology/docextract/internal/extract"
	"github.com/Epistemic-Technology/docextract/internal/llm"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/storage"
	"github.com/Epistemic-Technology/docextract/models"
)

// DocumentFetcher retrieves a document and decodes it to text.
type DocumentFetcher interface {
	Fetch(ctx context.Context, locator string) (*models.Document, error)
}

// EstimateCost fetches the document at locator and estimates the input cost
// of sending its full text to a model. Fetch errors are returned unmodified.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - fetcher: Retrieves and decodes the document
//   - pricing: Tier table; validated before any I/O
//   - locator: Path, URL, s3:// or zotero: locator
func EstimateCost(ctx context.Context, fetcher DocumentFetcher, pricing cost.Pricing, locator string) (*models.CostEstimate, error) {
	if err := pricing.Validate(); err != nil {
		return nil, err
	}
	doc, err := fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	est := pricing.Estimate(doc.FullText())
	return &est, nil
}

// Deps bundles the collaborators of the extraction pipeline.
type Deps struct {
	Fetcher      DocumentFetcher
	Orchestrator *extract.Orchestrator
	Store        storage.Store
	Log          logger.Logger
	// Ping checks the model backend before a document is fetched. Nil
	// skips the check.
	Ping func(ctx context.Context) error

	closers []func() error
}

// NewDeps wires the fetcher, model backend, orchestrator and store from cfg.
// opts overrides the orchestrator settings derived from cfg.
func NewDeps(ctx context.Context, cfg *config.Config, opts *extract.Options, log logger.Logger) (*Deps, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		derived, err := extract.OptionsFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts = &derived
	}

	ext, err := llm.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	orch, err := extract.New(ext, *opts, log)
	if err != nil {
		llm.Close(ext)
		return nil, err
	}
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		llm.Close(ext)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	deps := &Deps{
		Fetcher:      documents.FromConfig(cfg, log),
		Orchestrator: orch,
		Store:        store,
		Log:          log,
		closers:      []func() error{store.Close, func() error { return llm.Close(ext) }},
	}
	if p, ok := ext.(llm.Pinger); ok {
		deps.Ping = p.Ping
	}
	return deps, nil
}

// Close releases the store and model backend.
func (d *Deps) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// ExtractResult is the outcome of GetOrExtractDocument.
type ExtractResult struct {
	DocumentID string
	Document   *models.AnnotatedDocument
	// Cached is true when the document came from the store without any
	// model calls.
	Cached   bool
	Failures []extract.PassFailure
	Windows  int
	Passes   int
}

// GetOrExtractDocument retrieves an annotated document from storage if it
// exists, or fetches the document, runs the extraction passes and stores the
// result if it doesn't. force re-extracts even when a stored result exists.
//
// Results with failed passes are stored too; the failures are reported on
// the returned result only.
func GetOrExtractDocument(ctx context.Context, deps *Deps, locator string, task models.Task, force bool) (*ExtractResult, error) {
	docID := storage.GenerateDocumentID(locator)

	if !force {
		exists, err := deps.Store.Exists(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("failed to check document existence: %w", err)
		}
		if exists {
			doc, err := deps.Store.Get(ctx, docID)
			if err != nil {
				return nil, fmt.Errorf("failed to retrieve existing document: %w", err)
			}
			deps.Log.Info("Using stored extractions for %s (%s)", locator, docID)
			return &ExtractResult{DocumentID: docID, Document: doc, Cached: true}, nil
		}
	}

	if deps.Ping != nil {
		if err := deps.Ping(ctx); err != nil {
			return nil, err
		}
	}

	document, err := deps.Fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	res, err := deps.Orchestrator.Run(ctx, locator, document.FullText(), task)
	if err != nil {
		return nil, err
	}
	res.Document.ID = docID

	if err := deps.Store.Save(ctx, res.Document); err != nil {
		return nil, fmt.Errorf("failed to store extractions: %w", err)
	}

	return &ExtractResult{
		DocumentID: docID,
		Document:   res.Document,
		Failures:   res.Failures,
		Windows:    res.Windows,
		Passes:     res.Passes,
	}, nil
}
