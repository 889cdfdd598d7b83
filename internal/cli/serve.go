package cli

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/Epistemic-Technology/docextract/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Serves the cost-estimate, document-extract and extraction-export tools and
the extraction:// resources over the Model Context Protocol on stdin/stdout.

Client configuration:
  {
    "mcpServers": {
      "docextract": {
        "command": "/path/to/docextract",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	srv, deps, err := server.CreateServer(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	log.Info("Starting docextract MCP server %s", server.Version)
	return srv.Run(cmd.Context(), &mcp.StdioTransport{})
}
