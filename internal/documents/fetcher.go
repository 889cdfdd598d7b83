package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/google/uuid"

	"github.com/Epistemic-Technology/docextract/internal/config"
	"github.com/Epistemic-Technology/docextract/internal/errs"
	"github.com/Epistemic-Technology/docextract/internal/logger"
	"github.com/Epistemic-Technology/docextract/internal/pdf"
	"github.com/Epistemic-Technology/docextract/models"
)

// Fetcher retrieves a document by locator and decodes it to page texts.
//
// Supported locators are local paths, file:// and http(s):// URLs,
// s3://bucket/key and zotero:<itemKey>. Remote payloads are streamed to a
// scratch file that is always removed before Fetch returns.
type Fetcher struct {
	client     *http.Client
	scratchDir string
	timeout    time.Duration
	pdf        pdf.Decoder
	zotero     AttachmentSource
	objects    ObjectSource
	log        logger.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// WithPDFDecoder replaces the default pdfcpu/docconv decoder.
func WithPDFDecoder(dec pdf.Decoder) Option {
	return func(f *Fetcher) { f.pdf = dec }
}

// WithZotero enables zotero: locators.
func WithZotero(src AttachmentSource) Option {
	return func(f *Fetcher) { f.zotero = src }
}

// WithObjectSource enables s3:// locators.
func WithObjectSource(src ObjectSource) Option {
	return func(f *Fetcher) { f.objects = src }
}

// NewFetcher creates a fetcher from the fetch settings.
func NewFetcher(cfg config.FetchConfig, log logger.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     http.DefaultClient,
		scratchDir: cfg.ScratchDir,
		timeout:    cfg.Timeout,
		log:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.pdf == nil {
		f.pdf = pdf.NewDecoder(log)
	}
	if f.scratchDir == "" {
		f.scratchDir = os.TempDir()
	}
	return f
}

// FromConfig wires every configured source.
func FromConfig(cfg *config.Config, log logger.Logger) *Fetcher {
	opts := []Option{WithObjectSource(NewS3Source(cfg.S3))}
	if src := NewZoteroSource(cfg.Zotero); src != nil {
		opts = append(opts, WithZotero(src))
	}
	return NewFetcher(cfg.Fetch, log, opts...)
}

// Fetch retrieves and decodes the document at locator.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (*models.Document, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, errs.Configurationf("fetch", "empty document locator")
	}

	var data []byte
	var err error
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return f.fetchRemote(ctx, locator, func(ctx context.Context, scratch *os.File) error {
			return f.download(ctx, locator, scratch)
		})
	case strings.HasPrefix(locator, "s3://"):
		bucket, key, perr := parseS3Locator(locator)
		if perr != nil {
			return nil, perr
		}
		if f.objects == nil {
			return nil, errs.Configurationf("fetch", "s3 locators are not configured")
		}
		return f.fetchRemote(ctx, locator, func(ctx context.Context, scratch *os.File) error {
			if _, err := f.objects.Download(ctx, bucket, key, scratch); err != nil {
				return errs.Retrieval("s3 download", err)
			}
			return nil
		})
	case strings.HasPrefix(locator, "zotero:"):
		data, err = f.fetchZotero(ctx, strings.TrimPrefix(locator, "zotero:"))
	case strings.HasPrefix(locator, "file://"):
		u, perr := url.Parse(locator)
		if perr != nil {
			return nil, errs.Configuration("fetch", perr)
		}
		data, err = readLocal(u.Path)
	default:
		data, err = readLocal(locator)
	}
	if err != nil {
		return nil, err
	}
	return f.decodeDocument(ctx, locator, data)
}

// fetchRemote owns a scratch file for the duration of one download and
// decode. The file is closed and removed on every return path.
func (f *Fetcher) fetchRemote(ctx context.Context, locator string, download func(context.Context, *os.File) error) (*models.Document, error) {
	scratch, err := os.CreateTemp(f.scratchDir, scratchPattern(locator))
	if err != nil {
		return nil, errs.Retrieval("create scratch file", err)
	}
	defer func() {
		scratch.Close()
		if err := os.Remove(scratch.Name()); err != nil && !os.IsNotExist(err) {
			f.log.Warn("Failed to remove scratch file %s: %v", scratch.Name(), err)
		}
	}()

	f.log.Debug("Downloading %s to %s", locator, scratch.Name())
	if err := download(ctx, scratch); err != nil {
		return nil, err
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return nil, errs.Retrieval("rewind scratch file", err)
	}
	data, err := io.ReadAll(scratch)
	if err != nil {
		return nil, errs.Retrieval("read scratch file", err)
	}
	return f.decodeDocument(ctx, locator, data)
}

func (f *Fetcher) download(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Retrieval("build request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return errs.Retrieval("GET "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.Retrieval("GET "+rawURL, fmt.Errorf("unexpected status %s", resp.Status))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return errs.Retrieval("GET "+rawURL, err)
	}
	f.log.Debug("Downloaded %d bytes from %s", n, rawURL)
	return nil
}

func (f *Fetcher) fetchZotero(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errs.Configurationf("fetch", "zotero locator has no item key")
	}
	if f.zotero == nil {
		return nil, errs.Configurationf("fetch", "ZOTERO_API_KEY and ZOTERO_LIBRARY_ID are required for zotero locators")
	}
	data, err := f.zotero.File(ctx, key)
	if err != nil {
		return nil, errs.Retrieval("zotero file "+key, err)
	}
	return data, nil
}

func readLocal(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errs.Retrieval("read "+p, err)
	}
	return data, nil
}

func (f *Fetcher) decodeDocument(ctx context.Context, locator string, data []byte) (*models.Document, error) {
	pages, docType, err := f.Decode(ctx, data)
	if err != nil {
		return nil, err
	}
	f.log.Info("Fetched %s (%s, %d pages)", locator, docType, len(pages))
	return &models.Document{Source: locator, Type: docType, Pages: pages}, nil
}

// Decode converts raw document bytes into page texts by detected type.
// HTML, DOCX, and plain-text documents yield a single page.
func (f *Fetcher) Decode(ctx context.Context, data []byte) ([]string, string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []string{string(data)}, "txt", nil
	}

	docType := DetectDocumentType(data)
	switch docType {
	case "pdf":
		pages, err := f.pdf.PageTexts(ctx, data)
		if err != nil {
			return nil, docType, err
		}
		return pages, docType, nil
	case "html":
		text, err := htmlText(data)
		if err != nil {
			return nil, docType, errs.Decode("convert html", err)
		}
		return []string{text}, docType, nil
	case "zotero-snapshot":
		html, err := ExtractHTMLFromZip(data)
		if err != nil {
			return nil, docType, errs.Decode("extract snapshot", err)
		}
		text, err := htmlText(html)
		if err != nil {
			return nil, docType, errs.Decode("convert html", err)
		}
		return []string{text}, docType, nil
	case "docx":
		text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
		if err != nil {
			return nil, docType, errs.Decode("convert docx", err)
		}
		return []string{text}, docType, nil
	case "txt", "md":
		if !utf8.Valid(data) {
			return nil, docType, errs.Decodef("decode text", "document is not valid UTF-8")
		}
		return []string{string(data)}, docType, nil
	default:
		return nil, docType, errs.Decodef("decode", "unsupported document type %q", docType)
	}
}

func parseS3Locator(locator string) (string, string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", errs.Configuration("fetch", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", errs.Configurationf("fetch", "s3 locator %q must look like s3://bucket/key", locator)
	}
	return u.Host, key, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// scratchPattern derives a readable scratch name from the locator's last
// path segment plus a per-invocation UUID.
func scratchPattern(locator string) string {
	segment := ""
	if u, err := url.Parse(locator); err == nil {
		segment = path.Base(u.Path)
	}
	segment = unsafeName.ReplaceAllString(segment, "_")
	segment = strings.Trim(segment, "._")
	if segment == "" {
		segment = "download"
	}
	if len(segment) > 64 {
		segment = segment[:64]
	}
	return filepath.Base(segment) + "-" + uuid.NewString() + "-*"
}
