package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
)

func sampleDoc(id string) *models.AnnotatedDocument {
	return &models.AnnotatedDocument{
		ID:     id,
		Source: "https://example.org/audit-" + id + ".pdf",
		Text:   "Reference 2024-002 Federal Agency: U.S. Department of Treasury\n<b>Questioned Costs</b>: None – “quoted” ünïcode",
		Extractions: []models.Extraction{
			{
				Class:      "audit_finding",
				Text:       "2024-002",
				Attributes: map[string]string{"agency": "U.S. Department of Treasury", "repeat": ""},
				Interval:   &models.CharInterval{Start: 10, End: 18},
			},
			{
				Class:      "questioned_costs",
				Text:       "None",
				Attributes: map[string]string{},
			},
			{
				Class: "note",
				Text:  "<b>Questioned Costs</b>",
			},
		},
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	jsonl, err := NewJSONLStore(filepath.Join(dir, "extraction_results.jsonl"))
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(filepath.Join(dir, "extraction_results.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		jsonl.Close()
		sqlite.Close()
	})
	return map[string]Store{"jsonl": jsonl, "sqlite": sqlite}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			want := []*models.AnnotatedDocument{sampleDoc("a"), sampleDoc("b")}
			want[1].Extractions = []models.Extraction{}
			want[1].Text = ""
			require.NoError(t, store.Save(ctx, want...))

			for _, doc := range want {
				got, err := store.Get(ctx, doc.ID)
				require.NoError(t, err)
				assert.Equal(t, doc, got)
			}
		})
	}
}

func TestStoreUpsertKeepsOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, sampleDoc("first"), sampleDoc("second")))

			updated := sampleDoc("first")
			updated.Extractions = updated.Extractions[:1]
			require.NoError(t, store.Save(ctx, updated))

			infos, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []models.DocumentInfo{
				{DocumentID: "first", Source: updated.Source, ExtractionCount: 1},
				{DocumentID: "second", Source: sampleDoc("second").Source, ExtractionCount: 3},
			}, infos)

			got, err := store.Get(ctx, "first")
			require.NoError(t, err)
			assert.Equal(t, updated, got)
		})
	}
}

func TestStoreExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := store.Exists(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Save(ctx, sampleDoc("a")))
			ok, err = store.Exists(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.Delete(ctx, "a"))
			_, err = store.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.Delete(ctx, "a"), ErrNotFound)

			infos, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, infos)
		})
	}
}

func TestStoreRejectsMissingID(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, store.Save(ctx, sampleDoc("")))
			assert.Error(t, store.Save(ctx, nil))
		})
	}
}

func TestJSONLStoreFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	store, err := NewJSONLStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleDoc("a"), sampleDoc("b")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"document_id":"a"`))
	assert.Contains(t, lines[0], `"extraction_class":"audit_finding"`)
	assert.Contains(t, lines[0], `"char_interval":{"start_pos":10,"end_pos":18}`)
	assert.Contains(t, lines[0], "<b>Questioned Costs</b>", "HTML is not escaped")

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	reopened, err := NewJSONLStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, sampleDoc("b"), got)
}

func TestJSONLStoreCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"document_id\":\"a\"}\nnot json\n"), 0644))

	_, err := NewJSONLStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.StorageConfig{Backend: config.BackendJSONL, Path: filepath.Join(dir, "nested", "r.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	s, err = Open(config.StorageConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "r.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open(config.StorageConfig{Backend: "postgres", Path: filepath.Join(dir, "x")})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestGenerateDocumentID(t *testing.T) {
	a := GenerateDocumentID("https://example.org/report.pdf")
	assert.Equal(t, a, GenerateDocumentID("https://example.org/report.pdf"))
	assert.NotEqual(t, a, GenerateDocumentID("https://example.org/other.pdf"))
	assert.True(t, strings.HasPrefix(a, "doc_"))
	assert.Len(t, a, len("doc_")+36)
}

func TestCalculateResourcePaths(t *testing.T) {
	assert.Equal(t, []string{
		"extraction://a",
		"extraction://a/extractions/0",
		"extraction://a/extractions/2",
		"extraction://a/extractions/{index}",
	}, CalculateResourcePaths(sampleDoc("a")))

	empty := &models.AnnotatedDocument{ID: "e"}
	assert.Equal(t, []string{"extraction://e"}, CalculateResourcePaths(empty))
}
