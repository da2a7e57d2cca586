package upstream

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiterSpacesConcurrentCallers(t *testing.T) {
	// 10 concurrent acquires against a 5/s budget must spread over at
	// least 9 * 200ms.
	l := NewLimiter(5)

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(times) != 10 {
		t.Fatalf("expected 10 dispatches, got %d", len(times))
	}
	first, last := times[0], times[0]
	for _, ts := range times[1:] {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	if span := last.Sub(first); span < 1790*time.Millisecond {
		t.Fatalf("dispatch span too short: %v", span)
	}
}

func TestLimiterZeroBudgetDoesNotBlock(t *testing.T) {
	l := NewLimiter(0)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = l.Acquire(context.Background())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unlimited limiter blocked")
	}
}

func TestLimiterAcquireCancelled(t *testing.T) {
	l := NewLimiter(1)
	// consume the immediate slot so the next caller has to wait
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected context error from blocked Acquire")
	}
}

func TestSleepWithContextNegativeDuration(t *testing.T) {
	if err := SleepWithContext(context.Background(), -time.Second); err != nil {
		t.Fatalf("negative sleep returned error: %v", err)
	}
}
