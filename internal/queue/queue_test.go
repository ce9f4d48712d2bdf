package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scriptorium/folio/internal/store"
)

func mustQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "folio.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s.DB(), nil)
}

type testPayload struct {
	Name string `json:"name"`
}

func mustEnqueue(t *testing.T, q *Queue, queue string, priority Priority, name string) int64 {
	t.Helper()
	id, err := q.Enqueue(context.Background(), queue, priority, testPayload{Name: name})
	if err != nil {
		t.Fatalf("Enqueue(%s) error = %v", name, err)
	}
	return id
}

func mustClaim(t *testing.T, q *Queue, queue string) *claimedJob {
	t.Helper()
	job, err := q.claim(context.Background(), queue)
	if err != nil {
		t.Fatalf("claim() error = %v", err)
	}
	return job
}

func TestClaimOrdering(t *testing.T) {
	q := mustQueue(t)

	// Normal jobs drain oldest first; expedited jobs jump the line and drain
	// newest first among themselves.
	mustEnqueue(t, q, QueuePages, PriorityNormal, "a")
	mustEnqueue(t, q, QueuePages, PriorityNormal, "b")
	mustEnqueue(t, q, QueuePages, PriorityNormal, "c")
	mustEnqueue(t, q, QueuePages, PriorityExpedited, "x")
	mustEnqueue(t, q, QueuePages, PriorityExpedited, "y")

	want := []string{
		`{"name":"y"}`,
		`{"name":"x"}`,
		`{"name":"a"}`,
		`{"name":"b"}`,
		`{"name":"c"}`,
	}
	for i, w := range want {
		job := mustClaim(t, q, QueuePages)
		if job == nil {
			t.Fatalf("claim %d returned no job", i)
		}
		if job.payload != w {
			t.Errorf("claim %d payload = %s, want %s", i, job.payload, w)
		}
	}

	if job := mustClaim(t, q, QueuePages); job != nil {
		t.Errorf("claim on drained queue returned %+v", job)
	}
}

func TestQueuesAreIndependent(t *testing.T) {
	q := mustQueue(t)
	mustEnqueue(t, q, QueueBooks, PriorityNormal, "book")

	if job := mustClaim(t, q, QueuePages); job != nil {
		t.Errorf("pages claim returned books job %+v", job)
	}
	if job := mustClaim(t, q, QueueBooks); job == nil {
		t.Error("books claim returned no job")
	}
}

func TestFailedJobRedelivered(t *testing.T) {
	q := mustQueue(t)
	ctx := context.Background()
	id := mustEnqueue(t, q, QueuePages, PriorityNormal, "retry-me")

	job := mustClaim(t, q, QueuePages)
	if job == nil || job.id != id {
		t.Fatalf("claim returned %+v, want job %d", job, id)
	}
	if job.attempts != 0 {
		t.Errorf("first delivery attempts = %d, want 0", job.attempts)
	}

	// Negative delay makes the job immediately eligible again.
	if err := q.release(ctx, job.id, errors.New("boom"), -time.Second); err != nil {
		t.Fatalf("release() error = %v", err)
	}

	again := mustClaim(t, q, QueuePages)
	if again == nil {
		t.Fatal("released job was not redelivered")
	}
	if again.id != id {
		t.Errorf("redelivered job id = %d, want %d", again.id, id)
	}
	if again.attempts != 1 {
		t.Errorf("attempts after release = %d, want 1", again.attempts)
	}
}

func TestBackoffDefersRedelivery(t *testing.T) {
	q := mustQueue(t)
	ctx := context.Background()
	mustEnqueue(t, q, QueuePages, PriorityNormal, "later")

	job := mustClaim(t, q, QueuePages)
	if job == nil {
		t.Fatal("claim returned no job")
	}
	if err := q.release(ctx, job.id, errors.New("boom"), time.Hour); err != nil {
		t.Fatalf("release() error = %v", err)
	}

	if again := mustClaim(t, q, QueuePages); again != nil {
		t.Errorf("backed-off job claimed early: %+v", again)
	}
	depth, err := q.Depth(ctx, QueuePages)
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 1 {
		t.Errorf("depth = %d, want 1", depth)
	}
}

func TestRecoverReturnsRunningJobs(t *testing.T) {
	q := mustQueue(t)
	ctx := context.Background()
	mustEnqueue(t, q, QueueBooks, PriorityNormal, "orphan")

	if job := mustClaim(t, q, QueueBooks); job == nil {
		t.Fatal("claim returned no job")
	}
	// The job is now running; a restart must return it to pending.
	if job := mustClaim(t, q, QueueBooks); job != nil {
		t.Fatalf("running job claimed twice: %+v", job)
	}

	n, err := q.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Recover() = %d, want 1", n)
	}
	if job := mustClaim(t, q, QueueBooks); job == nil {
		t.Error("recovered job was not redelivered")
	}
}

func TestConsumeProcessesAndDeletes(t *testing.T) {
	q := mustQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 5
	for i := 0; i < total; i++ {
		mustEnqueue(t, q, QueuePages, PriorityNormal, "job")
	}

	var (
		mu   sync.Mutex
		seen int
	)
	done := make(chan struct{})
	go q.Consume(ctx, QueuePages, 3, func(ctx context.Context, payload []byte) error {
		mu.Lock()
		seen++
		if seen == total {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		depth, err := q.Depth(context.Background(), QueuePages)
		if err != nil {
			t.Fatalf("Depth() error = %v", err)
		}
		if depth == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained, depth = %d", depth)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestConsumeBoundsConcurrency(t *testing.T) {
	q := mustQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const (
		total   = 12
		workers = 3
	)
	for i := 0; i < total; i++ {
		mustEnqueue(t, q, QueuePages, PriorityNormal, "job")
	}

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
		seen     int
	)
	done := make(chan struct{})
	go q.Consume(ctx, QueuePages, workers, func(ctx context.Context, payload []byte) error {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		// Hold the slot long enough for the other workers to pile in.
		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		seen++
		if seen == total {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if peak > workers {
		t.Errorf("peak in-flight jobs = %d, want at most %d", peak, workers)
	}
	if seen != total {
		t.Errorf("handled %d jobs, want %d", seen, total)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{50, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempts); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
