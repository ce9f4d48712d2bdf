package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scriptorium/folio/internal/queue"
	"github.com/scriptorium/folio/internal/store"
)

// ManagerConfig bounds the queue consumers.
type ManagerConfig struct {
	BatchSize       int // fan-out enqueue batch size
	BookConcurrency int // book fan-out workers
	PageConcurrency int // page pipeline workers, system-wide bound
}

// Manager owns the queue consumers and is the submission surface for the
// HTTP layer.
type Manager struct {
	queue  *queue.Queue
	fanout *FanOut
	worker *PageWorker
	cfg    ManagerConfig
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewManager wires the fan-out and page handlers over the shared store and
// queue.
func NewManager(st *store.Store, q *queue.Queue, counter pageCounter, runner pageProcessor, cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BookConcurrency <= 0 {
		cfg.BookConcurrency = 2
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 10
	}
	return &Manager{
		queue:  q,
		fanout: NewFanOut(st, counter, q, cfg.BatchSize, logger),
		worker: NewPageWorker(st, runner, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Start recovers orphaned jobs and launches the consumers. They run until
// ctx is cancelled; Wait blocks until they have drained.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.queue.Recover(ctx); err != nil {
		return fmt.Errorf("recover queue: %w", err)
	}

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		m.queue.Consume(ctx, queue.QueueBooks, m.cfg.BookConcurrency, m.fanout.Handle)
	}()
	go func() {
		defer m.wg.Done()
		m.queue.Consume(ctx, queue.QueuePages, m.cfg.PageConcurrency, m.worker.Handle)
	}()

	m.logger.Info("job consumers started",
		"book_concurrency", m.cfg.BookConcurrency,
		"page_concurrency", m.cfg.PageConcurrency)
	return nil
}

// Wait blocks until all consumers have stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// SubmitBook enqueues the fan-out job for a book.
func (m *Manager) SubmitBook(ctx context.Context, bookID string) error {
	_, err := m.queue.Enqueue(ctx, queue.QueueBooks, queue.PriorityNormal, BookJob{BookID: bookID})
	if err != nil {
		return fmt.Errorf("enqueue book: %w", err)
	}
	return nil
}

// SubmitRedo enqueues a single-page redo at expedited priority so it jumps
// ahead of bulk fan-out work.
func (m *Manager) SubmitRedo(ctx context.Context, job PageJob) error {
	job.IsRedo = true
	_, err := m.queue.Enqueue(ctx, queue.QueuePages, queue.PriorityExpedited, job)
	if err != nil {
		return fmt.Errorf("enqueue redo: %w", err)
	}
	return nil
}
