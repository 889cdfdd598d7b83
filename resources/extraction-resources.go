package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/docextract/internal/storage"
)

const scheme = storage.ResourceScheme + "://"

// ExtractionResourceHandler handles resource requests for stored extraction results
type ExtractionResourceHandler struct {
	store storage.Store
}

// NewExtractionResourceHandler creates a new extraction resource handler
func NewExtractionResourceHandler(store storage.Store) *ExtractionResourceHandler {
	return &ExtractionResourceHandler{store: store}
}

// ListResources returns a list of available resources
func (h *ExtractionResourceHandler) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	docs, err := h.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var resources []*mcp.Resource
	for _, doc := range docs {
		resources = append(resources, &mcp.Resource{
			URI:         scheme + doc.DocumentID,
			Name:        doc.DocumentID,
			Title:       doc.Source,
			Description: fmt.Sprintf("%d extractions from %s", doc.ExtractionCount, doc.Source),
			MIMEType:    "application/json",
		})
	}

	return resources, nil
}

// ReadResource reads a specific resource by URI:
// extraction://{documentId}, extraction://{documentId}/extractions or
// extraction://{documentId}/extractions/{index}
func (h *ExtractionResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	if !strings.HasPrefix(uri, scheme) {
		return nil, fmt.Errorf("invalid URI scheme, expected %s", scheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, scheme), "/")
	docID := parts[0]
	if docID == "" {
		return nil, fmt.Errorf("invalid URI, missing document ID")
	}
	if len(parts) > 3 || (len(parts) > 1 && parts[1] != "extractions") {
		return nil, fmt.Errorf("unknown resource: %s", uri)
	}

	doc, err := h.store.Get(ctx, docID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, err
	}

	var content any
	switch len(parts) {
	case 1:
		content = doc
	case 2:
		content = doc.Extractions
	case 3:
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid index: %s", parts[2])
		}
		if index < 0 || index >= len(doc.Extractions) {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		content = map[string]any{
			"document_id": docID,
			"index":       index,
			"extraction":  doc.Extractions[index],
		}
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
