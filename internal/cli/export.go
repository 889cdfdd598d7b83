package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Epistemic-Technology/docextract/internal/export"
	"github.com/Epistemic-Technology/docextract/tools"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export [document-id...]",
	Short: "Export stored extractions to an XLSX workbook",
	Long: `Writes one row per extraction with one column per attribute key.
Without document IDs every stored document is exported.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output .xlsx file")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, missing, err := tools.LoadDocuments(cmd.Context(), store, args, log)
	if err != nil {
		return err
	}
	for _, id := range missing {
		cmd.PrintErrf("not found: %s\n", id)
	}
	if len(docs) == 0 {
		return errors.New("no documents to export")
	}

	if err := export.WriteFile(exportOut, docs); err != nil {
		return err
	}

	n := 0
	for _, doc := range docs {
		n += len(doc.Extractions)
	}
	cmd.Printf("exported %d documents (%d extractions) to %s\n", len(docs), n, exportOut)
	return nil
}
