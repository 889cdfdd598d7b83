// Package cli implements the docextract command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/documents"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/operations"
	"github.com/Epistemic-Technology/docextract/internal/storage"
)

var (
	cfg     *config.Config
	log     logger.Logger
	verbose bool

	// Constructors are swapped out in tests.
	newFetcher = func(cfg *config.Config, log logger.Logger) operations.DocumentFetcher {
		return documents.FromConfig(cfg, log)
	}
	newDeps   = operations.NewDeps
	openStore = storage.Open
)

var rootCmd = &cobra.Command{
	Use:   "docextract",
	Short: "Extract structured records from documents with a language model",
	Long: `docextract fetches a document (local path, http(s) URL, s3://bucket/key
or zotero:<itemKey>), converts it to text and either estimates the model
input cost or runs a multi-pass extraction over it.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func setup(cmd *cobra.Command, _ []string) error {
	if cfg == nil {
		cfg = config.Load()
	}
	if log == nil {
		level := logger.WarnLevel
		if verbose {
			level = logger.DebugLevel
		}
		log = logger.NewWriterLogger(cmd.ErrOrStderr(), level)
	}
	return nil
}

// Execute runs the command line and returns the process exit code. Failures
// are printed to stderr with the failing stage and a hint.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), errs.Describe(err))
		return 1
	}
	return 0
}
