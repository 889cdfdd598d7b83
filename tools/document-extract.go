package tools

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/operations"
	"github.com/Epistemic-Technology/docextract/internal/storage"
	"github.com/Epistemic-Technology/docextract/models"
)

var errMissingLocator = errors.New("locator is required")

type DocumentExtractQuery struct {
	Locator           string                     `json:"locator" jsonschema:"local path, http(s) URL, s3://bucket/key or zotero:<itemKey>"`
	TaskFile          string                     `json:"task_file,omitempty" jsonschema:"path to a TOML task file; overrides prompt_description and examples"`
	PromptDescription string                     `json:"prompt_description,omitempty"`
	Examples          []models.ExtractionExample `json:"examples,omitempty"`
	Force             bool                       `json:"force,omitempty" jsonschema:"re-extract even when a stored result exists"`
}

type DocumentExtractResponse struct {
	DocumentID      string   `json:"document_id"`
	ResourcePaths   []string `json:"resource_paths"`
	ExtractionCount int      `json:"extraction_count"`
	Cached          bool     `json:"cached"`
	Windows         int      `json:"windows,omitempty"`
	Passes          int      `json:"passes,omitempty"`
	Failures        []string `json:"failures,omitempty"`
}

func DocumentExtractTool() *mcp.Tool {
	inputschema, err := jsonschema.For[DocumentExtractQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "document-extract",
		Description: "Extract labeled records from a document. The text is split into windows, each window is sent to the model several times with the prompt and worked examples, and the passes are merged into one deduplicated list. Results are stored and returned from the store on later calls unless force is set. Provide either task_file or prompt_description with examples.",
		InputSchema: inputschema,
	}
}

func DocumentExtractToolHandler(ctx context.Context, req *mcp.CallToolRequest, query DocumentExtractQuery, deps *operations.Deps, log logger.Logger) (*mcp.CallToolResult, *DocumentExtractResponse, error) {
	log.Info("document-extract tool called for %s", query.Locator)
	if query.Locator == "" {
		return nil, nil, errMissingLocator
	}

	task, err := resolveTask(query)
	if err != nil {
		return nil, nil, err
	}

	res, err := operations.GetOrExtractDocument(ctx, deps, query.Locator, *task, query.Force)
	if err != nil {
		log.Error("document-extract tool failed: %v", err)
		return nil, nil, err
	}

	responseData := &DocumentExtractResponse{
		DocumentID:      res.DocumentID,
		ResourcePaths:   storage.CalculateResourcePaths(res.Document),
		ExtractionCount: len(res.Document.Extractions),
		Cached:          res.Cached,
		Windows:         res.Windows,
		Passes:          res.Passes,
	}
	for _, f := range res.Failures {
		responseData.Failures = append(responseData.Failures, f.String())
	}

	return nil, responseData, nil
}

func resolveTask(query DocumentExtractQuery) (*models.Task, error) {
	if query.TaskFile != "" {
		return config.LoadTask(query.TaskFile)
	}
	task := &models.Task{PromptDescription: query.PromptDescription, Examples: query.Examples}
	if err := config.ValidateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}
