package service

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryRateLimiterQuotaWithinWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := newMemoryRateLimiter(time.Minute, 120, clock.Now)

	var rejected []int
	for i := 1; i <= 130; i++ {
		if !l.Allow("10.0.0.1") {
			rejected = append(rejected, i)
		}
		clock.Advance(300 * time.Millisecond)
	}
	if len(rejected) != 10 || rejected[0] != 121 || rejected[9] != 130 {
		t.Fatalf("expected requests 121-130 rejected, got %v", rejected)
	}
}

func TestMemoryRateLimiterWindowResets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := newMemoryRateLimiter(time.Minute, 2, clock.Now)

	if !l.Allow("k") || !l.Allow("k") {
		t.Fatalf("expected first two requests allowed")
	}
	if l.Allow("k") {
		t.Fatalf("expected third request rejected")
	}
	clock.Advance(time.Minute)
	if !l.Allow("k") {
		t.Fatalf("expected request allowed after window reset")
	}
}

func TestMemoryRateLimiterKeysIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	l := newMemoryRateLimiter(time.Minute, 1, clock.Now)

	if !l.Allow("a") || !l.Allow("b") {
		t.Fatalf("expected distinct clients to have separate quotas")
	}
	if l.Allow("a") {
		t.Fatalf("expected client a over quota")
	}
}

func TestMemoryRateLimiterSweep(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	l := newMemoryRateLimiter(time.Minute, 5, clock.Now)
	l.Allow("a")
	clock.Advance(2 * time.Minute)
	l.sweep()
	l.mu.Lock()
	n := len(l.counters)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected expired counters swept, got %d", n)
	}
}

func TestMemoryRateLimiterConcurrent(t *testing.T) {
	l := newMemoryRateLimiter(time.Minute, 50, time.Now)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Fatalf("expected exactly 50 admitted, got %d", allowed)
	}
}

func TestMemoryRateLimiterStopIdempotent(t *testing.T) {
	l := NewMemoryRateLimiter(time.Minute, 1)
	l.Stop()
	l.Stop()
}
