package cli

import (
	"github.com/spf13/cobra"

	"github.com/Epistemic-Technology/docextract/internal/cost"
	"github.com/Epistemic-Technology/docextract/internal/operations"
)

var costCmd = &cobra.Command{
	Use:   "cost <locator>",
	Short: "Estimate the model input cost of a document",
	Long: `Fetches the document, counts its words and approximates input tokens at
1000 tokens per 750 words. The configured tier table prices the whole
token count at the tier it falls in. No model is called.`,
	Args: cobra.ExactArgs(1),
	RunE: runCost,
}

func init() {
	rootCmd.AddCommand(costCmd)
}

func runCost(cmd *cobra.Command, args []string) error {
	est, err := operations.EstimateCost(cmd.Context(), newFetcher(cfg, log), cfg.PricingTable(), args[0])
	if err != nil {
		return err
	}
	return cost.Format(cmd.OutOrStdout(), *est)
}
