package main

import (
	"context"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/server"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	// Initialize logger with default configuration
	log, err := logger.NewLogger(logger.LogConfig{})
	if err != nil {
		// Fall back to stderr if logger initialization fails
		panic(err)
	}

	log.Info("Starting docextract MCP server %s", server.Version)

	ctx := context.Background()
	srv, deps, err := server.CreateServer(ctx, config.Load(), log)
	if err != nil {
		log.Fatal("Server setup failed: %v", err)
	}
	defer deps.Close()

	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatal("Server failed: %v", err)
	}
}
