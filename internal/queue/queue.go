// Package queue implements durable named job queues on SQLite. Jobs survive
// restarts, are delivered at least once, and retry with backoff when a
// handler fails. Within a queue, normal-priority jobs run oldest first while
// expedited jobs run newest first ahead of everything else.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Queue names used by the pipeline.
const (
	QueueBooks = "books"
	QueuePages = "pages"
)

// Priority orders jobs within a queue.
type Priority int

const (
	PriorityNormal    Priority = 0
	PriorityExpedited Priority = 10
)

// Job statuses.
const (
	statusPending = "pending"
	statusRunning = "running"
)

const (
	pollInterval   = 500 * time.Millisecond
	maxRetryDelay  = 60 * time.Second
	baseRetryDelay = time.Second
)

// Handler processes one job payload. A non-nil error redelivers the job
// after backoff.
type Handler func(ctx context.Context, payload []byte) error

// Queue dispatches durable jobs stored in a shared SQLite database.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger

	mu    sync.Mutex
	wakes map[string][]chan struct{}
}

// New creates a queue dispatcher over db. The jobs table must already exist.
func New(db *sql.DB, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		db:     db,
		logger: logger,
		wakes:  make(map[string][]chan struct{}),
	}
}

// Enqueue stores a job and wakes one consumer. The payload is marshalled to
// JSON.
func (q *Queue) Enqueue(ctx context.Context, queue string, priority Priority, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.ExecContext(ctx, `
        INSERT INTO jobs (queue, priority, payload, status, available_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		queue, int(priority), string(data), statusPending, now, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job id: %w", err)
	}

	q.wake(queue)
	return id, nil
}

// Recover returns claimed-but-unfinished jobs to pending. Call once on
// startup so jobs held by a crashed process are redelivered.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `
        UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		statusPending, time.Now().UTC().Format(time.RFC3339Nano), statusRunning)
	if err != nil {
		return 0, fmt.Errorf("recover jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		q.logger.Info("recovered orphaned jobs", "count", n)
	}
	return int(n), nil
}

// Depth returns the number of jobs waiting or running in a queue.
func (q *Queue) Depth(ctx context.Context, queue string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM jobs WHERE queue = ?`, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// Consume runs up to concurrency workers over a queue until ctx is
// cancelled. Each worker claims one job at a time.
func (q *Queue) Consume(ctx context.Context, queue string, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			q.work(ctx, queue, worker, handler)
		}(i)
	}
	wg.Wait()
}

func (q *Queue) work(ctx context.Context, queue string, worker int, handler Handler) {
	log := q.logger.With("queue", queue, "worker", worker)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.claim(ctx, queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to claim job", "error", err)
			q.sleep(ctx, pollInterval)
			continue
		}
		if job == nil {
			q.waitForWork(ctx, queue)
			continue
		}

		// Settle the job even if ctx was cancelled while the handler ran,
		// otherwise a clean shutdown leaves it stuck in running.
		settle := context.WithoutCancel(ctx)

		if err := handler(ctx, []byte(job.payload)); err != nil {
			delay := retryDelay(job.attempts + 1)
			log.Warn("job failed, scheduling retry",
				"job_id", job.id,
				"attempts", job.attempts+1,
				"retry_in", delay,
				"error", err)
			if rerr := q.release(settle, job.id, err, delay); rerr != nil {
				log.Error("failed to release job", "job_id", job.id, "error", rerr)
			}
			continue
		}

		if _, err := q.db.ExecContext(settle, `DELETE FROM jobs WHERE id = ?`, job.id); err != nil {
			log.Error("failed to delete finished job", "job_id", job.id, "error", err)
		}
	}
}

type claimedJob struct {
	id       int64
	payload  string
	attempts int
}

// claim atomically marks the next eligible job running. Jobs are ordered by
// priority first; within the expedited band the newest job wins (LIFO),
// within the normal band the oldest (FIFO).
func (q *Queue) claim(ctx context.Context, queue string) (*claimedJob, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var job claimedJob
	err = tx.QueryRowContext(ctx, `
        SELECT id, payload, attempts FROM jobs
        WHERE queue = ? AND status = ? AND available_at <= ?
        ORDER BY priority DESC,
                 CASE WHEN priority >= ? THEN -id ELSE id END ASC
        LIMIT 1`,
		queue, statusPending, now, int(PriorityExpedited)).
		Scan(&job.id, &job.payload, &job.attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		statusRunning, now, job.id, statusPending)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Another worker won the race.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return &job, nil
}

// release returns a failed job to pending with backoff.
func (q *Queue) release(ctx context.Context, id int64, cause error, delay time.Duration) error {
	now := time.Now().UTC()
	_, err := q.db.ExecContext(ctx, `
        UPDATE jobs SET status = ?, attempts = attempts + 1, last_error = ?,
            available_at = ?, updated_at = ?
        WHERE id = ?`,
		statusPending, cause.Error(),
		now.Add(delay).Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	return nil
}

// retryDelay grows exponentially with the attempt count, capped at
// maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		attempts = 10
	}
	delay := baseRetryDelay * time.Duration(1<<(attempts-1))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// waitForWork blocks until a job is enqueued, the poll interval elapses, or
// ctx is cancelled. Polling covers jobs becoming available after backoff.
func (q *Queue) waitForWork(ctx context.Context, queue string) {
	ch := make(chan struct{}, 1)

	q.mu.Lock()
	q.wakes[queue] = append(q.wakes[queue], ch)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		chans := q.wakes[queue]
		for i, c := range chans {
			if c == ch {
				q.wakes[queue] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		q.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
	case <-ch:
	case <-time.After(pollInterval):
	}
}

// wake signals one waiting worker on the queue.
func (q *Queue) wake(queue string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.wakes[queue] {
		select {
		case ch <- struct{}{}:
			return
		default:
		}
	}
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
