package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scriptorium/folio/internal/pipeline"
	"github.com/scriptorium/folio/internal/store"
	"github.com/scriptorium/folio/internal/words"
)

type pageStore interface {
	GetPage(ctx context.Context, id string) (*store.Page, error)
	UpsertPage(ctx context.Context, bookID string, pdfPageNumber int, upd store.PageOCRUpdate) (*store.Page, error)
	UpdatePageOCR(ctx context.Context, pageID string, version int, upd store.PageOCRUpdate) (*store.Page, error)
	MarkBookInReview(ctx context.Context, id string) error
}

type pageProcessor interface {
	ProcessPage(ctx context.Context, url string, pageIndex int, pinned string) (*pipeline.Result, error)
}

// PageWorker handles PageJobs: run the pipeline for one page and persist the
// outcome. A transport failure still persists the failed state, then
// propagates so the queue redelivers the job.
type PageWorker struct {
	store  pageStore
	runner pageProcessor
	logger *slog.Logger
}

// NewPageWorker creates the page job handler.
func NewPageWorker(st pageStore, runner pageProcessor, logger *slog.Logger) *PageWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageWorker{store: st, runner: runner, logger: logger}
}

// Handle processes one PageJob payload.
func (w *PageWorker) Handle(ctx context.Context, payload []byte) error {
	var job PageJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("unmarshal page job: %w", err)
	}
	log := w.logger.With("book_id", job.BookID, "page_index", job.PageIndex)

	res, runErr := w.runner.ProcessPage(ctx, job.PDFURL, job.PageIndex, job.Provider)

	upd := classify(res, runErr)
	if err := w.persist(ctx, job, upd, log); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	if job.IsLast {
		if err := w.store.MarkBookInReview(ctx, job.BookID); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
				log.Warn("skipping in_review transition", "error", err)
				return nil
			}
			return fmt.Errorf("mark book in review: %w", err)
		}
		log.Info("last page finished, book in review")
	}
	return nil
}

// classify maps a pipeline outcome to the persisted page state.
func classify(res *pipeline.Result, runErr error) store.PageOCRUpdate {
	if runErr != nil {
		// Hard failure: clear everything, the job will run again.
		return store.PageOCRUpdate{OCRStatus: store.OCRStatusFailed}
	}

	if res.Complete() {
		seg := res.Segments
		upd := store.PageOCRUpdate{
			OCRStatus:  store.OCRStatusCompleted,
			Content:    &seg.Body,
			PageNumber: seg.PageNumber,
			TotalWords: words.CountAll(seg.Body, seg.Footnotes),
		}
		if seg.Footnotes != "" {
			upd.Footnotes = &seg.Footnotes
		}
		if strings.TrimSpace(seg.Body) == "" && strings.TrimSpace(seg.Footnotes) == "" {
			upd.Flags = []store.PageFlag{store.FlagEmpty}
		}
		return upd
	}

	// Partial: keep the best text and flag the page for a human.
	partial := res.PartialText
	return store.PageOCRUpdate{
		OCRStatus:  store.OCRStatusFailed,
		Flags:      []store.PageFlag{store.FlagNeedsAdditionalReview},
		Content:    &partial,
		TotalWords: words.Count(partial),
	}
}

// persist writes the page state. Redo jobs update the existing row by id
// with a version CAS; everything else upserts on (book, pdf position).
func (w *PageWorker) persist(ctx context.Context, job PageJob, upd store.PageOCRUpdate, log *slog.Logger) error {
	if !job.IsRedo || job.PageID == "" {
		if _, err := w.store.UpsertPage(ctx, job.BookID, job.PageIndex+1, upd); err != nil {
			return fmt.Errorf("persist page: %w", err)
		}
		return nil
	}

	// One reload on CAS conflict covers a stale version from the reset
	// write; a second conflict means a live concurrent writer and the job
	// is retried.
	for attempt := 0; attempt < 2; attempt++ {
		page, err := w.store.GetPage(ctx, job.PageID)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("dropping redo for deleted page", "page_id", job.PageID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load page: %w", err)
		}

		_, err = w.store.UpdatePageOCR(ctx, page.ID, page.Version, upd)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return fmt.Errorf("persist redo: %w", err)
		}
	}
	return fmt.Errorf("persist redo %s: %w", job.PageID, store.ErrVersionConflict)
}
