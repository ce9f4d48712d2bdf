// Package pipeline runs the per-page transcription chain: rasterize, OCR,
// then three sequential LLM stages (correct, htmlify, segment). The chain
// halts at the first stage that returns a null outcome and reports the best
// text produced so far; transport errors abort the page entirely so the job
// layer can retry it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scriptorium/folio/internal/providers"
)

// Stage names the steps of the per-page chain.
type Stage string

const (
	StageCorrect Stage = "correct"
	StageHTMLify Stage = "htmlify"
	StageSegment Stage = "segment"
)

const stageMaxTokens = 8192

// ImageRenderer rasterizes one PDF page to a PNG. Implemented by
// pdf.Extractor.
type ImageRenderer interface {
	RenderImage(ctx context.Context, url string, pageIndex int) ([]byte, error)
}

// Result is the outcome of running the chain over one page. A complete run
// carries Segments; a partial run carries the best text produced before
// FailedStage returned a null outcome.
type Result struct {
	Segments      *Segments
	PartialText   string
	FailedStage   Stage
	ContentPolicy bool
}

// Complete reports whether every stage succeeded.
func (r *Result) Complete() bool {
	return r.FailedStage == ""
}

// Runner executes the per-page chain.
type Runner struct {
	renderer ImageRenderer
	registry *providers.Registry
	caller   *providers.Caller
	ocrName  string
	logger   *slog.Logger

	mu         sync.Mutex
	ocrLimiter *providers.RateLimiter
}

// NewRunner creates a chain runner. ocrName selects the OCR provider from
// the registry.
func NewRunner(renderer ImageRenderer, registry *providers.Registry, caller *providers.Caller, ocrName string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		renderer: renderer,
		registry: registry,
		caller:   caller,
		ocrName:  ocrName,
		logger:   logger,
	}
}

// ProcessPage runs the full chain for the page at the 0-based index of the
// PDF at url. pinned restricts all LLM stages to a single provider with no
// fallback; empty pinned uses the default/alternate chain. A non-nil error
// is a transport failure and the page should be retried.
func (r *Runner) ProcessPage(ctx context.Context, url string, pageIndex int, pinned string) (*Result, error) {
	image, err := r.renderer.RenderImage(ctx, url, pageIndex)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageIndex, err)
	}

	rawText, err := r.runOCR(ctx, image, pageIndex)
	if err != nil {
		return nil, err
	}

	log := r.logger.With("page_index", pageIndex)

	// Stage 1: correct the raw OCR text against the page image.
	correctRes, err := r.caller.Invoke(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: CorrectPrompt()},
			{Role: "user", Content: rawText, Images: [][]byte{image}},
		},
		Temperature: 0,
		MaxTokens:   stageMaxTokens,
	}, pinned)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StageCorrect, err)
	}
	if correctRes.Null() {
		log.Warn("stage returned null outcome", "stage", StageCorrect, "error_type", correctRes.ErrorType)
		return haltedResult(rawText, StageCorrect, correctRes), nil
	}
	corrected := correctRes.Content

	// Stage 2: structural HTML markup, content unchanged. The image rides
	// along so layout (headings, verse, footnote rules) stays visible.
	htmlRes, err := r.caller.Invoke(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: HTMLifyPrompt()},
			{Role: "user", Content: corrected, Images: [][]byte{image}},
		},
		Temperature: 0,
		MaxTokens:   stageMaxTokens,
	}, pinned)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StageHTMLify, err)
	}
	if htmlRes.Null() {
		log.Warn("stage returned null outcome", "stage", StageHTMLify, "error_type", htmlRes.ErrorType)
		return haltedResult(corrected, StageHTMLify, htmlRes), nil
	}
	html := htmlRes.Content

	// Stage 3: structured segmentation, also against the image.
	format := segmentsResponseFormat()
	segRes, err := r.caller.Invoke(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: SegmentPrompt()},
			{Role: "user", Content: html, Images: [][]byte{image}},
		},
		Temperature:    0,
		MaxTokens:      stageMaxTokens,
		ResponseFormat: format,
	}, pinned)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StageSegment, err)
	}
	if segRes.Null() {
		log.Warn("stage returned null outcome", "stage", StageSegment, "error_type", segRes.ErrorType)
		return haltedResult(html, StageSegment, segRes), nil
	}

	// Valid JSON of the wrong shape is a null outcome, not a job failure.
	if verr := providers.ValidateStructuredJSON(format.JSONSchema, segRes.ParsedJSON); verr != nil {
		log.Warn("segment output failed schema validation", "error", verr)
		return haltedResult(html, StageSegment, segRes), nil
	}
	segments, err := parseSegments(segRes.ParsedJSON)
	if err != nil {
		log.Warn("segment output has wrong shape", "error", err)
		return haltedResult(html, StageSegment, segRes), nil
	}

	return &Result{Segments: segments}, nil
}

// runOCR rasterized-image text extraction. Any OCR failure is a hard error.
func (r *Runner) runOCR(ctx context.Context, image []byte, pageIndex int) (string, error) {
	ocr, err := r.registry.GetOCR(r.ocrName)
	if err != nil {
		return "", fmt.Errorf("ocr provider %q unavailable: %w", r.ocrName, err)
	}

	if err := r.limiterFor(ocr).Wait(ctx); err != nil {
		return "", err
	}

	res, err := ocr.ProcessImage(ctx, image, pageIndex+1)
	if err != nil {
		return "", fmt.Errorf("ocr page %d: %w", pageIndex, err)
	}
	if !res.Success {
		return "", fmt.Errorf("ocr page %d: %s", pageIndex, res.ErrorMessage)
	}
	return res.Text, nil
}

func (r *Runner) limiterFor(ocr providers.OCRProvider) *providers.RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ocrLimiter == nil {
		r.ocrLimiter = providers.NewRateLimiter(ocr.RequestsPerSecond())
	}
	return r.ocrLimiter
}

func haltedResult(partial string, stage Stage, res *providers.ChatResult) *Result {
	return &Result{
		PartialText:   partial,
		FailedStage:   stage,
		ContentPolicy: res.ErrorType == providers.ErrorTypeContentPolicy,
	}
}
