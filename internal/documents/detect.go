package documents

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DetectDocumentType determines the type of document from the raw data
// by checking magic bytes/headers
func DetectDocumentType(data []byte) string {
	if len(data) == 0 {
		return "unknown"
	}

	// For very short data, check if it's text
	if len(data) < 4 {
		if isLikelyText(data) {
			return "txt"
		}
		return "unknown"
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "pdf"
	}

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("<!DOCTYPE html")) ||
		bytes.HasPrefix(trimmed, []byte("<!doctype html")) ||
		bytes.HasPrefix(trimmed, []byte("<html")) ||
		bytes.HasPrefix(trimmed, []byte("<HTML")) {
		return "html"
	}

	// ZIP containers: DOCX, Zotero web snapshots, or anything else
	if data[0] == 0x50 && data[1] == 0x4B &&
		(data[2] == 0x03 || data[2] == 0x05 || data[2] == 0x07) {
		if bytes.Contains(data[:min(len(data), 1024)], []byte("word/")) {
			return "docx"
		}
		if isZoteroSnapshotZip(data) {
			return "zotero-snapshot"
		}
		return "zip"
	}

	if isLikelyText(data) {
		head := data[:min(len(data), 1024)]
		if bytes.Contains(head, []byte("# ")) ||
			bytes.Contains(head, []byte("## ")) ||
			bytes.Contains(head, []byte("```")) {
			return "md"
		}
		return "txt"
	}

	return "unknown"
}

// isLikelyText reports whether at least 90% of the leading runes are
// printable or whitespace. Multi-byte UTF-8 text counts as text.
func isLikelyText(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sample := data[:min(len(data), 512)]
	if bytes.Contains(sample, []byte{0}) {
		return false
	}

	total, printable := 0, 0
	for len(sample) > 0 {
		r, size := utf8.DecodeRune(sample)
		sample = sample[size:]
		total++
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	return float64(printable)/float64(total) > 0.9
}

func isHTMLName(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}

// isZoteroSnapshotZip reports whether a ZIP archive holds at least one HTML page.
func isZoteroSnapshotZip(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if isHTMLName(f.Name) {
			return true
		}
	}
	return false
}

// ExtractHTMLFromZip returns the main page of a snapshot archive: index.html
// when present at any depth, otherwise the first HTML file by name.
func ExtractHTMLFromZip(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var candidates []*zip.File
	for _, f := range zr.File {
		if isHTMLName(f.Name) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no HTML file in archive")
	}
	sort.Slice(candidates, func(i, j int) bool {
		iIndex := strings.EqualFold(path.Base(candidates[i].Name), "index.html")
		jIndex := strings.EqualFold(path.Base(candidates[j].Name), "index.html")
		if iIndex != jIndex {
			return iIndex
		}
		return candidates[i].Name < candidates[j].Name
	})

	rc, err := candidates[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", candidates[0].Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
