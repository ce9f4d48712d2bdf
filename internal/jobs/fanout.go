package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/scriptorium/folio/internal/queue"
	"github.com/scriptorium/folio/internal/store"
)

type bookStore interface {
	GetBook(ctx context.Context, id string) (*store.Book, error)
	SetBookProcessing(ctx context.Context, id string, totalPages int) error
}

type pageCounter interface {
	PageCount(ctx context.Context, url string) (int, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, queue string, priority queue.Priority, payload any) (int64, error)
}

// FanOut handles BookJobs: count the PDF's pages and enqueue one PageJob per
// page, then move the book to processing. Duplicate deliveries are absorbed
// by the status guard; duplicate page jobs are absorbed by the page upsert.
type FanOut struct {
	store     bookStore
	counter   pageCounter
	queue     enqueuer
	batchSize int
	logger    *slog.Logger
}

// NewFanOut creates the book fan-out handler. batchSize bounds how many
// enqueues run concurrently.
func NewFanOut(st bookStore, counter pageCounter, q enqueuer, batchSize int, logger *slog.Logger) *FanOut {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FanOut{
		store:     st,
		counter:   counter,
		queue:     q,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Handle processes one BookJob payload.
func (f *FanOut) Handle(ctx context.Context, payload []byte) error {
	var job BookJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("unmarshal book job: %w", err)
	}
	log := f.logger.With("book_id", job.BookID)

	book, err := f.store.GetBook(ctx, job.BookID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("dropping job for unknown book")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	if book.Status != store.BookStatusUnprocessed {
		log.Warn("dropping duplicate fan-out", "status", book.Status)
		return nil
	}

	total, err := f.counter.PageCount(ctx, book.PDFURL)
	if err != nil {
		return fmt.Errorf("count pages: %w", err)
	}
	if total == 0 {
		log.Warn("dropping job for empty pdf", "pdf_url", book.PDFURL)
		return nil
	}

	log.Info("fanning out book", "total_pages", total)

	for start := 0; start < total; start += f.batchSize {
		end := start + f.batchSize
		if end > total {
			end = total
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			page := PageJob{
				BookID:    book.ID,
				PDFURL:    book.PDFURL,
				PageIndex: i,
				IsLast:    i == total-1,
			}
			g.Go(func() error {
				_, err := f.queue.Enqueue(gctx, queue.QueuePages, queue.PriorityNormal, page)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("enqueue pages: %w", err)
		}
	}

	// The last page can finish before this write lands; the book then sits
	// in in_review already and the transition is refused. That is fine.
	if err := f.store.SetBookProcessing(ctx, book.ID, total); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			log.Info("book moved past processing before fan-out finished")
			return nil
		}
		return fmt.Errorf("mark book processing: %w", err)
	}
	return nil
}
