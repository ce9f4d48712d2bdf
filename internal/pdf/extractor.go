// Package pdf fetches remote book PDFs and produces per-page artifacts:
// page counts, standalone single-page PDFs, and rasterized PNG images.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/scriptorium/folio/internal/cache"
)

// document is a fetched and parsed PDF kept in the extractor cache.
type document struct {
	data      []byte
	pageCount int
}

// ExtractorConfig configures the extractor.
type ExtractorConfig struct {
	CacheSize    int           // Parsed-document cache entries (default: 20)
	CacheTTL     time.Duration // Parsed-document cache expiry (default: 2h)
	RenderDPI    int           // Rasterization resolution (default: 200)
	FetchTimeout time.Duration // Per-download timeout (default: 120s)
	Logger       *slog.Logger
}

// Extractor downloads PDFs by URL and serves page-level operations from a
// bounded, expiring document cache. Safe for concurrent use.
type Extractor struct {
	client *http.Client
	docs   cache.Arena[string, *document]
	dpi    int
	logger *slog.Logger

	// fetch is replaceable in tests.
	fetch func(ctx context.Context, url string) ([]byte, error)
}

// NewExtractor creates an extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Hour
	}
	if cfg.RenderDPI <= 0 {
		cfg.RenderDPI = 200
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	e := &Extractor{
		client: &http.Client{Timeout: cfg.FetchTimeout},
		docs:   cache.NewExpiring[string, *document](cfg.CacheSize, cfg.CacheTTL),
		dpi:    cfg.RenderDPI,
		logger: cfg.Logger,
	}
	e.fetch = e.download
	return e
}

// PageCount returns the number of pages in the PDF at url.
func (e *Extractor) PageCount(ctx context.Context, url string) (int, error) {
	doc, err := e.getDocument(ctx, url)
	if err != nil {
		return 0, err
	}
	return doc.pageCount, nil
}

// SinglePage returns a standalone one-page PDF for the 0-based pageIndex.
func (e *Extractor) SinglePage(ctx context.Context, url string, pageIndex int) ([]byte, error) {
	doc, err := e.getDocument(ctx, url)
	if err != nil {
		return nil, err
	}
	if pageIndex < 0 || pageIndex >= doc.pageCount {
		return nil, fmt.Errorf("page index %d out of range (document has %d pages)", pageIndex, doc.pageCount)
	}

	var buf bytes.Buffer
	pageNum := strconv.Itoa(pageIndex + 1)
	if err := api.Trim(bytes.NewReader(doc.data), &buf, []string{pageNum}, nil); err != nil {
		return nil, fmt.Errorf("failed to extract page %d: %w", pageIndex, err)
	}
	return buf.Bytes(), nil
}

// RenderImage rasterizes the 0-based pageIndex to a PNG using pdftoppm
// (poppler-utils) at the configured DPI.
func (e *Extractor) RenderImage(ctx context.Context, url string, pageIndex int) ([]byte, error) {
	doc, err := e.getDocument(ctx, url)
	if err != nil {
		return nil, err
	}
	if pageIndex < 0 || pageIndex >= doc.pageCount {
		return nil, fmt.Errorf("page index %d out of range (document has %d pages)", pageIndex, doc.pageCount)
	}

	tmpDir, err := os.MkdirTemp("", "folio-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "book.pdf")
	if err := os.WriteFile(pdfPath, doc.data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	// Output prefix for pdftoppm
	outputPrefix := filepath.Join(tmpDir, "page")

	// -png: output PNG format
	// -f N / -l N: render only this page
	// -r N: resolution in DPI
	// -singlefile: don't add page number suffix
	pageStr := strconv.Itoa(pageIndex + 1)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(e.dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	// pdftoppm with -singlefile creates: <prefix>.png
	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

// getDocument returns the cached document for url, fetching and parsing on miss.
func (e *Extractor) getDocument(ctx context.Context, url string) (*document, error) {
	if doc, ok := e.docs.Get(url); ok {
		return doc, nil
	}

	start := time.Now()
	data, err := e.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PDF: %w", err)
	}

	pageCount, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	doc := &document{data: data, pageCount: pageCount}
	e.docs.Set(url, doc)

	e.logger.Debug("fetched PDF",
		"url", url,
		"bytes", len(data),
		"pages", pageCount,
		"elapsed", time.Since(start))

	return doc, nil
}

// download fetches the PDF with retry on transient failures.
func (e *Extractor) download(ctx context.Context, url string) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
			if err != nil {
				return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}

			resp, err := e.client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("download failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("download failed: status %d", resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
					return nil, retry.Unrecoverable(err)
				}
				return nil, err
			}

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to read body: %w", err)
			}
			return data, nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
