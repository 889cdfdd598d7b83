package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Epistemic-Technology/docextract/models"
)

// JSONLStore keeps one AnnotatedDocument per line. Every write rewrites the
// file through a temporary sibling and a rename, so readers never observe a
// partial file.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONLStore opens (or lazily creates) the store at path.
func NewJSONLStore(path string) (*JSONLStore, error) {
	if path == "" {
		return nil, errors.New("jsonl store path is empty")
	}
	s := &JSONLStore{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *JSONLStore) Path() string {
	return s.path
}

// Save implements Store.
func (s *JSONLStore) Save(ctx context.Context, docs ...*models.AnnotatedDocument) error {
	for _, doc := range docs {
		if err := validate(doc); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}
	index := make(map[string]int, len(existing))
	for i, doc := range existing {
		index[doc.ID] = i
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i, ok := index[doc.ID]; ok {
			existing[i] = doc
			continue
		}
		index[doc.ID] = len(existing)
		existing = append(existing, doc)
	}
	return s.write(existing)
}

// Get implements Store.
func (s *JSONLStore) Get(ctx context.Context, docID string) (*models.AnnotatedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.ID == docID {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
}

// List implements Store.
func (s *JSONLStore) List(ctx context.Context) ([]models.DocumentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		return nil, err
	}
	infos := make([]models.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, info(doc))
	}
	return infos, nil
}

// Exists implements Store.
func (s *JSONLStore) Exists(ctx context.Context, docID string) (bool, error) {
	_, err := s.Get(ctx, docID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete implements Store.
func (s *JSONLStore) Delete(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.load()
	if err != nil {
		return err
	}
	kept := docs[:0]
	for _, doc := range docs {
		if doc.ID != docID {
			kept = append(kept, doc)
		}
	}
	if len(kept) == len(docs) {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return s.write(kept)
}

// Close implements Store. The file is not held open between calls.
func (s *JSONLStore) Close() error {
	return nil
}

func (s *JSONLStore) load() ([]*models.AnnotatedDocument, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer f.Close()

	var docs []*models.AnnotatedDocument
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var doc models.AnnotatedDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s line %d: %w", s.path, line, err)
		}
		docs = append(docs, &doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	return docs, nil
}

func (s *JSONLStore) write(docs []*models.AnnotatedDocument) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}

var _ Store = (*JSONLStore)(nil)
