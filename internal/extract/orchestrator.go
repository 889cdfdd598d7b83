// Package extract runs multi-pass extraction over a document's windows and
// merges the passes into one ordered, deduplicated list.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/llm"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/window"
	"github.com/Epistemic-Technology/docextract/models"
)

// FailurePolicy decides what a failed pass does to the run.
type FailurePolicy int

const (
	// ProceedOnFailure records the failure and merges whatever passes succeeded.
	ProceedOnFailure FailurePolicy = iota
	// AbortOnFailure cancels the run on the first failed pass.
	AbortOnFailure
)

func (p FailurePolicy) String() string {
	if p == AbortOnFailure {
		return config.PolicyAbort
	}
	return config.PolicyProceed
}

// ParseFailurePolicy maps "proceed" or "abort" to a policy. The empty string
// selects the default.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", config.PolicyProceed:
		return ProceedOnFailure, nil
	case config.PolicyAbort:
		return AbortOnFailure, nil
	}
	return ProceedOnFailure, errs.Configurationf("failure policy", "unknown failure policy %q (want %s or %s)", s, config.PolicyProceed, config.PolicyAbort)
}

// Options configures an Orchestrator.
type Options struct {
	Passes               int
	MaxCharBuffer        int
	Concurrency          int
	FailurePolicy        FailurePolicy
	BoundaryAware        bool
	PassTimeout          time.Duration
	Temperature          float64
	FenceOutput          bool
	UseSchemaConstraints bool
	ResolveOverlaps      bool
}

// DefaultOptions returns three passes over 1000-character windows.
func DefaultOptions() Options {
	return Options{
		Passes:        3,
		MaxCharBuffer: 1000,
		Concurrency:   4,
		FailurePolicy: ProceedOnFailure,
		PassTimeout:   120 * time.Second,
		Temperature:   0.3,
	}
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	policy, err := ParseFailurePolicy(cfg.Extraction.FailurePolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Passes:               cfg.Extraction.Passes,
		MaxCharBuffer:        cfg.Extraction.MaxCharBuffer,
		Concurrency:          cfg.Extraction.Concurrency,
		FailurePolicy:        policy,
		BoundaryAware:        cfg.Extraction.BoundaryAware,
		PassTimeout:          cfg.Model.Timeout,
		Temperature:          cfg.Model.Temperature,
		FenceOutput:          cfg.Model.FenceOutput,
		UseSchemaConstraints: cfg.Model.UseSchemaConstraints,
		ResolveOverlaps:      cfg.Extraction.ResolveOverlaps,
	}, nil
}

// Validate rejects settings that cannot produce a run.
func (o Options) Validate() error {
	switch {
	case o.Passes < 1:
		return errs.Configurationf("extract options", "passes must be at least 1, got %d", o.Passes)
	case o.MaxCharBuffer <= 0:
		return errs.Configurationf("extract options", "max char buffer must be positive, got %d", o.MaxCharBuffer)
	case o.Concurrency < 1:
		return errs.Configurationf("extract options", "concurrency must be at least 1, got %d", o.Concurrency)
	case o.PassTimeout < 0:
		return errs.Configurationf("extract options", "pass timeout must not be negative, got %v", o.PassTimeout)
	case o.FailurePolicy != ProceedOnFailure && o.FailurePolicy != AbortOnFailure:
		return errs.Configurationf("extract options", "unknown failure policy %d", o.FailurePolicy)
	}
	return nil
}

// PassFailure reports one pass that produced no extractions because the
// model call failed.
type PassFailure struct {
	Window models.TextWindow
	Pass   int
	Err    error
}

func (f PassFailure) String() string {
	return fmt.Sprintf("window %d [%d,%d) pass %d: %v", f.Window.Index, f.Window.Start, f.Window.End, f.Pass+1, f.Err)
}

// Result is the outcome of a run.
type Result struct {
	Document *models.AnnotatedDocument
	Failures []PassFailure
	Windows  int
	Passes   int
}

// Complete reports whether every pass succeeded.
func (r *Result) Complete() bool {
	return len(r.Failures) == 0
}

// Orchestrator runs extraction passes against an llm.Extractor.
type Orchestrator struct {
	ext     llm.Extractor
	opts    Options
	planner *window.Planner
	log     logger.Logger
}

// New validates opts and returns an Orchestrator.
func New(ext llm.Extractor, opts Options, log logger.Logger) (*Orchestrator, error) {
	if ext == nil {
		return nil, errs.Configurationf("extract", "no extractor configured")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var planOpts []window.Option
	if opts.BoundaryAware {
		planOpts = append(planOpts, window.WithBoundaryAware())
	}
	planner, err := window.NewPlanner(opts.MaxCharBuffer, planOpts...)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{ext: ext, opts: opts, planner: planner, log: log}, nil
}

// Options returns the orchestrator's settings.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Run extracts from text and returns the merged document. source is
// recorded on the document; the ID is left to the caller.
func (o *Orchestrator) Run(ctx context.Context, source, text string, task models.Task) (*Result, error) {
	if err := config.ValidateTask(&task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errs.Decodef("extract", "document produced no text")
	}

	windows := o.planner.Collect(text)
	o.log.Info("Extracting from %s: %d windows x %d passes", source, len(windows), o.opts.Passes)

	// each pass writes only its own slot
	slots := make([][]models.PassResult, len(windows))
	for i, w := range windows {
		slots[i] = make([]models.PassResult, o.opts.Passes)
		for p := range slots[i] {
			slots[i][p] = models.PassResult{Window: w, Pass: p}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i := range windows {
		for p := 0; p < o.opts.Passes; p++ {
			slot := &slots[i][p]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					slot.Err = err
					return nil
				}
				slot.Extractions, slot.Err = o.runPass(gctx, slot.Window, slot.Pass, task)
				if slot.Err != nil && o.opts.FailurePolicy == AbortOnFailure {
					return slot.Err
				}
				return nil
			})
		}
	}

	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		o.log.Error("Aborting extraction of %s: %v", source, waitErr)
		return nil, waitErr
	}

	result := &Result{Windows: len(windows), Passes: o.opts.Passes}
	merged := make([]WindowPasses, len(windows))
	for i, w := range windows {
		merged[i] = WindowPasses{Window: w, Passes: make([][]models.Extraction, o.opts.Passes)}
		for p, pr := range slots[i] {
			if pr.Err != nil {
				o.log.Warn("Pass %d over window %d failed: %v", p+1, i, pr.Err)
				result.Failures = append(result.Failures, PassFailure{Window: w, Pass: p, Err: pr.Err})
				continue
			}
			merged[i].Passes[p] = pr.Extractions
		}
	}

	extractions := Merge(merged, MergeOptions{ResolveOverlaps: o.opts.ResolveOverlaps})
	if extractions == nil {
		extractions = []models.Extraction{}
	}
	result.Document = &models.AnnotatedDocument{
		Source:      source,
		Text:        text,
		Extractions: extractions,
	}
	o.log.Info("Extracted %d records from %s (%d failed passes)", len(extractions), source, len(result.Failures))
	return result, nil
}

func (o *Orchestrator) runPass(ctx context.Context, w models.TextWindow, pass int, task models.Task) ([]models.Extraction, error) {
	if o.opts.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PassTimeout)
		defer cancel()
	}

	o.log.Debug("Pass %d over window %d [%d,%d)", pass+1, w.Index, w.Start, w.End)
	exts, err := o.ext.Extract(ctx, llm.Request{
		Text:                 w.Text,
		PromptDescription:    task.PromptDescription,
		Examples:             task.Examples,
		Temperature:          o.opts.Temperature,
		FenceOutput:          o.opts.FenceOutput,
		UseSchemaConstraints: o.opts.UseSchemaConstraints,
	})
	if err != nil {
		if !errors.Is(err, errs.ErrModelCall) {
			err = errs.ModelCall(fmt.Sprintf("window %d pass %d", w.Index, pass+1), err)
		}
		return nil, err
	}
	return Align(w, dropUnlabeled(exts)), nil
}

// dropUnlabeled removes records without a class.
func dropUnlabeled(exts []models.Extraction) []models.Extraction {
	kept := make([]models.Extraction, 0, len(exts))
	for _, e := range exts {
		if strings.TrimSpace(e.Class) != "" {
			kept = append(kept, e)
		}
	}
	return kept
}
