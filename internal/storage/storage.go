package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/models"
)

// ErrNotFound is returned when no document has the requested ID.
var ErrNotFound = errors.New("document not found")

// Store defines the interface for persisting annotated documents
type Store interface {
	// Save inserts or replaces each document by ID
	Save(ctx context.Context, docs ...*models.AnnotatedDocument) error

	// Get retrieves a document by ID
	Get(ctx context.Context, docID string) (*models.AnnotatedDocument, error)

	// List returns every stored document in first-saved order
	List(ctx context.Context) ([]models.DocumentInfo, error)

	// Exists reports whether a document with the ID is stored
	Exists(ctx context.Context, docID string) (bool, error)

	// Delete removes a document and its extractions
	Delete(ctx context.Context, docID string) error

	// Close releases the underlying file or database
	Close() error
}

// Open creates the store selected by cfg.Backend, creating parent
// directories as needed.
func Open(cfg config.StorageConfig) (Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	switch cfg.Backend {
	case config.BackendJSONL, "":
		return NewJSONLStore(cfg.Path)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	}
	return nil, errs.Configurationf("storage", "unknown storage backend %q", cfg.Backend)
}

// GenerateDocumentID derives a stable ID from a document locator, so the
// same locator always maps to the same stored result.
func GenerateDocumentID(locator string) string {
	return "doc_" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(locator)).String()
}

func validate(doc *models.AnnotatedDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.ID == "" {
		return fmt.Errorf("document from %q has no ID", doc.Source)
	}
	return nil
}

func info(doc *models.AnnotatedDocument) models.DocumentInfo {
	return models.DocumentInfo{
		DocumentID:      doc.ID,
		Source:          doc.Source,
		ExtractionCount: len(doc.Extractions),
	}
}
