package tools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Epistemic-Technology/docextract/internal/cost"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/extract"
	"github.com/Epistemic-Technology/docextract/internal/llm"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/operations"
	"github.com/Epistemic-Technology/docextract/internal/storage"
	"github.com/Epistemic-Technology/docextract/models"
)

type stubFetcher struct {
	text string
	err  error
}

func (s stubFetcher) Fetch(ctx context.Context, locator string) (*models.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Document{Source: locator, Pages: []string{s.text}}, nil
}

func newTestDeps(t *testing.T, text string) *operations.Deps {
	t.Helper()
	ext := llm.ExtractorFunc(func(ctx context.Context, req llm.Request) ([]models.Extraction, error) {
		return []models.Extraction{{Class: "audit_finding", Text: "2024-002", Attributes: map[string]string{"agency": "Treasury"}}}, nil
	})
	orch, err := extract.New(ext, extract.DefaultOptions(), logger.NewNoOpLogger())
	require.NoError(t, err)
	store, err := storage.NewJSONLStore(filepath.Join(t.TempDir(), "results.jsonl"))
	require.NoError(t, err)
	return &operations.Deps{Fetcher: stubFetcher{text: text}, Orchestrator: orch, Store: store, Log: logger.NewNoOpLogger()}
}

func TestCostEstimateToolHandler(t *testing.T) {
	log := logger.NewNoOpLogger()

	_, resp, err := CostEstimateToolHandler(context.Background(), nil, CostEstimateQuery{Locator: "a.txt"},
		stubFetcher{text: "alpha beta gamma"}, cost.DefaultPricing(), log)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.WordCount)
	assert.Equal(t, 4, resp.EstimatedTokens)
	assert.InDelta(t, 0.000005, resp.Cost, 1e-12)
	assert.Equal(t, "0.00", resp.Display)
	assert.Equal(t, 1.25, resp.RatePerMillion)

	_, _, err = CostEstimateToolHandler(context.Background(), nil, CostEstimateQuery{}, stubFetcher{}, cost.DefaultPricing(), log)
	assert.ErrorIs(t, err, errMissingLocator)

	fetchErr := errs.Retrieval("fetch", errors.New("status 503"))
	_, resp, err = CostEstimateToolHandler(context.Background(), nil, CostEstimateQuery{Locator: "https://x"},
		stubFetcher{err: fetchErr}, cost.DefaultPricing(), log)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, errs.ErrRetrieval)
}

func TestDocumentExtractToolHandler(t *testing.T) {
	deps := newTestDeps(t, "Reference 2024-002 Federal Agency: Treasury")
	query := DocumentExtractQuery{
		Locator:           "audit.txt",
		PromptDescription: "Extract audit findings.",
		Examples: []models.ExtractionExample{{
			Text:        "Reference 2024-001",
			Extractions: []models.Extraction{{Class: "audit_finding", Text: "2024-001"}},
		}},
	}

	_, resp, err := DocumentExtractToolHandler(context.Background(), nil, query, deps, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.Equal(t, storage.GenerateDocumentID("audit.txt"), resp.DocumentID)
	assert.Equal(t, 1, resp.ExtractionCount)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, resp.Windows)
	assert.Equal(t, 3, resp.Passes)
	assert.Contains(t, resp.ResourcePaths, "extraction://"+resp.DocumentID+"/extractions/0")

	_, resp, err = DocumentExtractToolHandler(context.Background(), nil, query, deps, logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.True(t, resp.Cached)
}

func TestDocumentExtractToolHandlerTaskErrors(t *testing.T) {
	deps := newTestDeps(t, "text")
	log := logger.NewNoOpLogger()

	_, _, err := DocumentExtractToolHandler(context.Background(), nil, DocumentExtractQuery{Locator: "a.txt"}, deps, log)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, _, err = DocumentExtractToolHandler(context.Background(), nil,
		DocumentExtractQuery{Locator: "a.txt", TaskFile: filepath.Join(t.TempDir(), "missing.toml")}, deps, log)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, _, err = DocumentExtractToolHandler(context.Background(), nil, DocumentExtractQuery{PromptDescription: "p"}, deps, log)
	assert.ErrorIs(t, err, errMissingLocator)
}

func TestExtractionExportToolHandler(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNoOpLogger()
	store, err := storage.NewJSONLStore(filepath.Join(t.TempDir(), "results.jsonl"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx,
		&models.AnnotatedDocument{ID: "a", Source: "a.txt", Extractions: []models.Extraction{{Class: "c", Text: "x"}, {Class: "c", Text: "y"}}},
		&models.AnnotatedDocument{ID: "b", Source: "b.txt", Extractions: []models.Extraction{{Class: "c", Text: "z"}}},
	))

	out := filepath.Join(t.TempDir(), "review.xlsx")
	_, resp, err := ExtractionExportToolHandler(ctx, nil, ExtractionExportQuery{OutputPath: out}, store, log)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.DocumentCount)
	assert.Equal(t, 3, resp.ExtractionCount)
	assert.Empty(t, resp.Missing)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	rows, err := f.GetRows("Extractions")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	f.Close()

	_, resp, err = ExtractionExportToolHandler(ctx, nil, ExtractionExportQuery{OutputPath: out, DocumentIDs: []string{"b", "nope"}}, store, log)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.DocumentCount)
	assert.Equal(t, []string{"nope"}, resp.Missing)

	_, _, err = ExtractionExportToolHandler(ctx, nil, ExtractionExportQuery{OutputPath: "out.csv"}, store, log)
	assert.Error(t, err)
	_, _, err = ExtractionExportToolHandler(ctx, nil, ExtractionExportQuery{}, store, log)
	assert.Error(t, err)
}

func TestToolSchemas(t *testing.T) {
	assert.Equal(t, "cost-estimate", CostEstimateTool().Name)
	assert.Equal(t, "document-extract", DocumentExtractTool().Name)
	assert.Equal(t, "extraction-export", ExtractionExportTool().Name)
	assert.NotNil(t, DocumentExtractTool().InputSchema)
	assert.NotNil(t, CostEstimateTool().InputSchema)
}
