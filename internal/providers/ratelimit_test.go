package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterTryConsume(t *testing.T) {
	// 1 rps with burst 1: first token available, second is not.
	rl := NewRateLimiter(1.0)

	if !rl.TryConsume() {
		t.Fatal("first TryConsume() = false, want true")
	}
	if rl.TryConsume() {
		t.Error("second TryConsume() = true, want false before refill")
	}
}

func TestRateLimiterWaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(0.1) // One token per 10s
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait() on drained limiter returned before context deadline")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(100.0)
	for i := 0; i < 100; i++ {
		if !rl.TryConsume() {
			t.Fatalf("TryConsume() failed at burst token %d", i)
		}
	}
	if rl.TryConsume() {
		t.Fatal("TryConsume() succeeded past burst")
	}

	time.Sleep(50 * time.Millisecond)

	// ~5 tokens should have refilled.
	if !rl.TryConsume() {
		t.Error("TryConsume() failed after refill window")
	}
}
