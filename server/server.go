package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/operations"
	"github.com/Epistemic-Technology/docextract/resources"
	"github.com/Epistemic-Technology/docextract/tools"
)

// Version is reported to MCP clients.
const Version = "v0.1.0"

// CreateServer wires the extraction pipeline from cfg and registers its
// tools and resources. The returned Deps must be closed by the caller.
func CreateServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*mcp.Server, *operations.Deps, error) {
	deps, err := operations.NewDeps(ctx, cfg, nil, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using %s store at %s", cfg.Storage.Backend, cfg.Storage.Path)

	return NewServer(ctx, deps, cfg, log), deps, nil
}

// NewServer registers tools and resources over existing dependencies.
func NewServer(ctx context.Context, deps *operations.Deps, cfg *config.Config, log logger.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "docextract", Version: Version}, nil)

	pricing := cfg.PricingTable()
	extractionResourceHandler := resources.NewExtractionResourceHandler(deps.Store)

	// Register tools with pipeline and logger dependencies
	mcp.AddTool(server, tools.CostEstimateTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.CostEstimateQuery) (*mcp.CallToolResult, *tools.CostEstimateResponse, error) {
		return tools.CostEstimateToolHandler(ctx, req, query, deps.Fetcher, pricing, log)
	})

	mcp.AddTool(server, tools.DocumentExtractTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.DocumentExtractQuery) (*mcp.CallToolResult, *tools.DocumentExtractResponse, error) {
		return tools.DocumentExtractToolHandler(ctx, req, query, deps, log)
	})

	mcp.AddTool(server, tools.ExtractionExportTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExtractionExportQuery) (*mcp.CallToolResult, *tools.ExtractionExportResponse, error) {
		return tools.ExtractionExportToolHandler(ctx, req, query, deps.Store, log)
	})

	// Template for a whole annotated document
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "extraction://{documentId}",
		Name:        "extraction-document",
		Description: "Annotated document with its source, text and merged extractions",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return extractionResourceHandler.ReadResource(ctx, req.Params.URI)
	})

	// Template for the extraction list
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "extraction://{documentId}/extractions",
		Name:        "extraction-list",
		Description: "All extractions of the document in document order",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return extractionResourceHandler.ReadResource(ctx, req.Params.URI)
	})

	// Template for individual extraction
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "extraction://{documentId}/extractions/{index}",
		Name:        "extraction",
		Description: "A specific extraction from the document (0-indexed)",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return extractionResourceHandler.ReadResource(ctx, req.Params.URI)
	})

	// Concrete resources for documents stored before startup
	stored, err := extractionResourceHandler.ListResources(ctx)
	if err != nil {
		log.Warn("Failed to list stored documents: %v", err)
	}
	for _, r := range stored {
		server.AddResource(r, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return extractionResourceHandler.ReadResource(ctx, req.Params.URI)
		})
	}

	return server
}
