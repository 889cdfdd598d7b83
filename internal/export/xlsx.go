// Package export renders stored extractions for human review.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Epistemic-Technology/docextract/models"
)

// SheetName is the worksheet every extraction is written to.
const SheetName = "Extractions"

var fixedHeaders = []string{"Document", "Source", "Class", "Text", "Start", "End"}

// WriteFile writes docs to a new workbook at path. Only the .xlsx
// extension is accepted.
func WriteFile(path string, docs []*models.AnnotatedDocument) error {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return fmt.Errorf("unsupported output %s (only .xlsx is supported)", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := WriteXLSX(f, docs); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// WriteXLSX writes one row per extraction across docs. Attribute keys become
// trailing columns, sorted by name; a record without a key leaves the cell
// empty. Extractions that were not located in the text leave Start and End
// empty.
func WriteXLSX(w io.Writer, docs []*models.AnnotatedDocument) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	keys := attributeKeys(docs)
	headers := append(append([]string{}, fixedHeaders...), keys...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("xlsx header: %w", err)
		}
	}

	row := 2
	for _, doc := range docs {
		for _, e := range doc.Extractions {
			values := []any{doc.ID, doc.Source, e.Class, e.Text, nil, nil}
			if e.Interval != nil {
				values[4], values[5] = e.Interval.Start, e.Interval.End
			}
			for _, k := range keys {
				if v, ok := e.Attributes[k]; ok {
					values = append(values, v)
				} else {
					values = append(values, nil)
				}
			}

			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
				return fmt.Errorf("xlsx row %d: %w", row, err)
			}
			row++
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 42) // document id
	_ = f.SetColWidth(SheetName, "B", "B", 40) // source
	_ = f.SetColWidth(SheetName, "C", "C", 20) // class
	_ = f.SetColWidth(SheetName, "D", "D", 60) // text
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func attributeKeys(docs []*models.AnnotatedDocument) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, doc := range docs {
		for _, e := range doc.Extractions {
			for k := range e.Attributes {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}
	sort.Strings(keys)
	return keys
}
