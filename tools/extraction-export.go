package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/docextract/internal/export"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/storage"
	"github.com/Epistemic-Technology/docextract/models"
)

type ExtractionExportQuery struct {
	DocumentIDs []string `json:"document_ids,omitempty"`
	OutputPath  string   `json:"output_path" jsonschema:"where to write the .xlsx workbook"`
}

type ExtractionExportResponse struct {
	OutputPath      string   `json:"output_path"`
	DocumentCount   int      `json:"document_count"`
	ExtractionCount int      `json:"extraction_count"`
	Missing         []string `json:"missing,omitempty"`
}

func ExtractionExportTool() *mcp.Tool {
	inputschema, err := jsonschema.For[ExtractionExportQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "extraction-export",
		Description: "Export stored extractions to an XLSX workbook for review, one row per extraction with one column per attribute. If document_ids are specified, exports only those documents. If not specified, exports every stored document.",
		InputSchema: inputschema,
	}
}

func ExtractionExportToolHandler(ctx context.Context, req *mcp.CallToolRequest, query ExtractionExportQuery, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *ExtractionExportResponse, error) {
	log.Info("extraction-export tool called")

	if query.OutputPath == "" {
		return nil, nil, fmt.Errorf("output_path is required")
	}
	docs, missing, err := LoadDocuments(ctx, store, query.DocumentIDs, log)
	if err != nil {
		return nil, nil, err
	}

	if err := export.WriteFile(query.OutputPath, docs); err != nil {
		return nil, nil, err
	}

	responseData := &ExtractionExportResponse{
		OutputPath:    query.OutputPath,
		DocumentCount: len(docs),
		Missing:       missing,
	}
	for _, doc := range docs {
		responseData.ExtractionCount += len(doc.Extractions)
	}
	log.Info("Exported %d documents to %s", len(docs), query.OutputPath)

	return nil, responseData, nil
}

// LoadDocuments fetches the listed documents, or every stored document when
// ids is empty. IDs that are not stored are returned in missing.
func LoadDocuments(ctx context.Context, store storage.Store, ids []string, log logger.Logger) ([]*models.AnnotatedDocument, []string, error) {
	if len(ids) == 0 {
		infos, err := store.List(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list documents: %w", err)
		}
		for _, info := range infos {
			ids = append(ids, info.DocumentID)
		}
		log.Info("Found %d documents in store", len(ids))
	}

	var docs []*models.AnnotatedDocument
	var missing []string
	for _, id := range ids {
		doc, err := store.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("Document not found: %s", id)
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, doc)
	}
	return docs, missing, nil
}
