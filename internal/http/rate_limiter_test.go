package httpx

import (
	"testing"
	"time"
)

func newTestLimiter(limit int, at time.Time) (*memoryRateLimiter, *time.Time) {
	clock := at
	rl := NewMemoryRateLimiter(limit).(*memoryRateLimiter)
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestMemoryRateLimiterBoundary(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(5, base)

	for i := 1; i <= 5; i++ {
		if !rl.Admit() {
			t.Fatalf("request %d within the limit was denied", i)
		}
	}
	if rl.Admit() {
		t.Fatal("request above the limit was admitted")
	}
}

func TestMemoryRateLimiterNewMinuteResets(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	rl, clock := newTestLimiter(2, base)

	rl.Admit()
	rl.Admit()
	if rl.Admit() {
		t.Fatal("third request in the same minute was admitted")
	}

	*clock = base.Add(time.Minute)
	if !rl.Admit() {
		t.Fatal("first request of the next minute was denied")
	}
}

func TestMemoryRateLimiterPrunesOldBuckets(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl, clock := newTestLimiter(10, base)

	rl.Admit()
	*clock = base.Add(time.Minute)
	rl.Admit()
	*clock = base.Add(3 * time.Minute)
	rl.Admit()

	rl.mu.Lock()
	buckets := len(rl.buckets)
	rl.mu.Unlock()
	if buckets != 1 {
		t.Fatalf("expected old buckets pruned, have %d", buckets)
	}
}

func TestMemoryRateLimiterSetLimitTakesEffectImmediately(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(1, base)

	if !rl.Admit() {
		t.Fatal("first request denied")
	}
	if rl.Admit() {
		t.Fatal("second request admitted at limit 1")
	}

	rl.SetLimit(3)
	if rl.Limit() != 3 {
		t.Fatalf("Limit() = %d, want 3", rl.Limit())
	}
	if !rl.Admit() {
		t.Fatal("request denied after raising the limit")
	}
}

func TestMemoryRateLimiterZeroLimitDisables(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl, _ := newTestLimiter(0, base)

	for i := 0; i < 100; i++ {
		if !rl.Admit() {
			t.Fatal("limiter with zero ceiling denied a request")
		}
	}
}
