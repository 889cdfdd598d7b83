package cli

import (
	"github.com/spf13/cobra"

	"github.com/Epistemic-Technology/docextract/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("docextract version %s\n", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
