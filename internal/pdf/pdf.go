package pdf

import (
	"bytes"
	"context"
	"io"
	"os/exec"

	"code.sajari.com/docconv"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
)

// Decoder turns PDF bytes into plain text, one string per page, in page order.
type Decoder interface {
	PageTexts(ctx context.Context, data []byte) ([]string, error)
}

// PageConverter extracts the text of a single-page PDF.
type PageConverter func(page []byte) (string, error)

// PdfcpuDecoder splits the document with pdfcpu and converts each page.
type PdfcpuDecoder struct {
	convert PageConverter
	log     logger.Logger
}

// NewDecoder returns a decoder that converts pages with docconv (pdftotext).
func NewDecoder(log logger.Logger) *PdfcpuDecoder {
	return NewDecoderWithConverter(DocconvPage, log)
}

// NewDecoderWithConverter uses convert for per-page text extraction.
func NewDecoderWithConverter(convert PageConverter, log logger.Logger) *PdfcpuDecoder {
	return &PdfcpuDecoder{convert: convert, log: log}
}

// PdftotextTool is the poppler binary docconv runs for PDF pages.
const PdftotextTool = "pdftotext"

// DocconvPage converts a single page with docconv. It fails with an
// *exec.Error naming the tool when pdftotext is not on PATH.
func DocconvPage(page []byte) (string, error) {
	if _, err := exec.LookPath(PdftotextTool); err != nil {
		return "", err
	}
	text, _, err := docconv.ConvertPDF(bytes.NewReader(page))
	return text, err
}

// PageTexts implements Decoder.
func (d *PdfcpuDecoder) PageTexts(ctx context.Context, data []byte) ([]string, error) {
	pages, err := SplitPdf(data)
	if err != nil {
		return nil, errs.Decode("split pdf", err)
	}
	d.log.Debug("Split PDF into %d pages", len(pages))

	texts := make([]string, 0, len(pages))
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := d.convert(page)
		if err != nil {
			return nil, errs.Decode("convert pdf page", err)
		}
		d.log.Debug("Page %d: %d characters", i+1, len(text))
		texts = append(texts, text)
	}
	return texts, nil
}

// SplitPdf splits a PDF document into single-page PDFs.
func SplitPdf(data []byte) ([][]byte, error) {
	var pages [][]byte
	reader := bytes.NewReader(data)
	conf := model.NewDefaultConfiguration()
	pdfContext, err := api.ReadValidateAndOptimize(reader, conf)
	if err != nil {
		return pages, err
	}
	pageCount := pdfContext.PageCount
	if pageCount == 0 {
		return pages, nil
	}
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pageReader, err := api.ExtractPage(pdfContext, pageNum)
		if err != nil {
			return pages, err
		}
		pageData, err := io.ReadAll(pageReader)
		if err != nil {
			return pages, err
		}
		pages = append(pages, pageData)
	}
	return pages, nil
}
