package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/extract"
	"github.com/Epistemic-Technology/docextract/internal/operations"
	"github.com/Epistemic-Technology/docextract/models"
)

var (
	extractTaskFile    string
	extractPasses      int
	extractBuffer      int
	extractConcurrency int
	extractAbort       bool
	extractBoundary    bool
	extractOverlaps    bool
	extractForce       bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <locator>",
	Short: "Run a multi-pass extraction over a document",
	Long: `Splits the document text into windows of at most --buffer characters and
sends every window to the model --passes times with the task prompt and
examples. The passes are merged into one deduplicated list in document order
and saved to the configured store.

Stored results are returned as is unless --force is given.

Example task file:
  prompt_description = "Extract audit findings with their agency."

  [[examples]]
  text = "Reference 2024-001 Federal Agency: Department of Labor"

  [[examples.extractions]]
  extraction_class = "audit_finding"
  extraction_text = "2024-001"
  attributes = { agency = "Department of Labor" }`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractTaskFile, "task", "t", "", "TOML task file with prompt_description and examples")
	extractCmd.Flags().IntVar(&extractPasses, "passes", 0, "passes per window (default from EXTRACTION_PASSES)")
	extractCmd.Flags().IntVar(&extractBuffer, "buffer", 0, "maximum characters per window (default from MAX_CHAR_BUFFER)")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 0, "model calls in flight (default from EXTRACTION_CONCURRENCY)")
	extractCmd.Flags().BoolVar(&extractAbort, "abort-on-failure", false, "stop at the first failed pass instead of reporting it")
	extractCmd.Flags().BoolVar(&extractBoundary, "boundary-aware", false, "end windows at a paragraph break, sentence end or newline when one falls in the second half")
	extractCmd.Flags().BoolVar(&extractOverlaps, "resolve-overlaps", false, "drop records that overlap a same-class record found by an earlier pass")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "re-extract even when a stored result exists")
	_ = extractCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	task, err := config.LoadTask(extractTaskFile)
	if err != nil {
		return err
	}

	opts, err := extractOptions(cmd)
	if err != nil {
		return err
	}

	deps, err := newDeps(cmd.Context(), cfg, &opts, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	res, err := operations.GetOrExtractDocument(cmd.Context(), deps, args[0], *task, extractForce)
	if err != nil {
		return err
	}
	printExtraction(cmd.OutOrStdout(), res)
	return nil
}

// extractOptions starts from the configured defaults and applies the flags
// that were set explicitly.
func extractOptions(cmd *cobra.Command) (extract.Options, error) {
	opts, err := extract.OptionsFromConfig(cfg)
	if err != nil {
		return opts, err
	}
	flags := cmd.Flags()
	if flags.Changed("passes") {
		opts.Passes = extractPasses
	}
	if flags.Changed("buffer") {
		opts.MaxCharBuffer = extractBuffer
	}
	if flags.Changed("concurrency") {
		opts.Concurrency = extractConcurrency
	}
	if extractAbort {
		opts.FailurePolicy = extract.AbortOnFailure
	}
	if extractBoundary {
		opts.BoundaryAware = true
	}
	if extractOverlaps {
		opts.ResolveOverlaps = true
	}
	return opts, opts.Validate()
}

func printExtraction(w io.Writer, res *operations.ExtractResult) {
	doc := res.Document
	fmt.Fprintf(w, "document: %s\nsource: %s\n", res.DocumentID, doc.Source)
	if res.Cached {
		fmt.Fprintln(w, "stored result (use --force to re-extract)")
	} else {
		fmt.Fprintf(w, "windows: %d, passes: %d\n", res.Windows, res.Passes)
	}
	fmt.Fprintf(w, "extractions: %d\n", len(doc.Extractions))

	for i, e := range doc.Extractions {
		fmt.Fprintf(w, "  [%d] %s: %q", i, e.Class, e.Text)
		if e.Interval != nil {
			fmt.Fprintf(w, " @%d-%d", e.Interval.Start, e.Interval.End)
		}
		if attrs := formatAttributes(e); attrs != "" {
			fmt.Fprintf(w, " {%s}", attrs)
		}
		fmt.Fprintln(w)
	}

	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "failed passes: %d of %d\n", len(res.Failures), res.Windows*res.Passes)
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

func formatAttributes(e models.Extraction) string {
	keys := slices.Sorted(maps.Keys(e.Attributes))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Attributes[k])
	}
	return strings.Join(parts, ", ")
}
