package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Epistemic-Technology/docextract/models"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		text TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS extractions (
		document_id TEXT NOT NULL,
		extraction_index INTEGER NOT NULL,
		extraction_class TEXT NOT NULL,
		extraction_text TEXT,
		attributes TEXT,
		start_pos INTEGER,
		end_pos INTEGER,
		PRIMARY KEY (document_id, extraction_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
	CREATE INDEX IF NOT EXISTS idx_extractions_class ON extractions(extraction_class);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Save stores each document in its own transaction, replacing any
// extractions previously stored under the same ID
func (s *SQLiteStore) Save(ctx context.Context, docs ...*models.AnnotatedDocument) error {
	for _, doc := range docs {
		if err := validate(doc); err != nil {
			return err
		}
		if err := s.save(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, doc *models.AnnotatedDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ON CONFLICT keeps the row's position in first-saved order
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, source, text)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source = excluded.source, text = excluded.text
	`, doc.ID, doc.Source, doc.Text)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear extractions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO extractions (document_id, extraction_index, extraction_class, extraction_text, attributes, start_pos, end_pos)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare extraction insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range doc.Extractions {
		attrsJSON, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal attributes: %w", err)
		}
		var start, end sql.NullInt64
		if e.Interval != nil {
			start = sql.NullInt64{Int64: int64(e.Interval.Start), Valid: true}
			end = sql.NullInt64{Int64: int64(e.Interval.End), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, i, e.Class, e.Text, string(attrsJSON), start, end); err != nil {
			return fmt.Errorf("failed to insert extraction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get retrieves a document and its extractions by ID
func (s *SQLiteStore) Get(ctx context.Context, docID string) (*models.AnnotatedDocument, error) {
	doc := &models.AnnotatedDocument{ID: docID, Extractions: []models.Extraction{}}
	var text sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT source, text FROM documents WHERE id = ?
	`, docID).Scan(&doc.Source, &text)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	doc.Text = text.String

	rows, err := s.db.QueryContext(ctx, `
		SELECT extraction_class, extraction_text, attributes, start_pos, end_pos
		FROM extractions
		WHERE document_id = ?
		ORDER BY extraction_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Extraction
		var attrsJSON string
		var start, end sql.NullInt64
		if err := rows.Scan(&e.Class, &e.Text, &attrsJSON, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		if err := json.Unmarshal([]byte(attrsJSON), &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
		if start.Valid && end.Valid {
			e.Interval = &models.CharInterval{Start: int(start.Int64), End: int(end.Int64)}
		}
		doc.Extractions = append(doc.Extractions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating extractions: %w", err)
	}

	return doc, nil
}

// List returns a listing entry for every stored document
func (s *SQLiteStore) List(ctx context.Context) ([]models.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.source, COUNT(e.extraction_index)
		FROM documents d
		LEFT JOIN extractions e ON e.document_id = d.id
		GROUP BY d.id
		ORDER BY d.rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	documents := []models.DocumentInfo{}
	for rows.Next() {
		var doc models.DocumentInfo
		if err := rows.Scan(&doc.DocumentID, &doc.Source, &doc.ExtractionCount); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return documents, nil
}

// Exists reports whether a document is stored
func (s *SQLiteStore) Exists(ctx context.Context, docID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, docID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query document: %w", err)
	}
	return n > 0, nil
}

// Delete removes a document and all associated data
func (s *SQLiteStore) Delete(ctx context.Context, docID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
