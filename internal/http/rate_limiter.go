package httpx

import (
	"sync"
	"sync/atomic"
	"time"
)

const bucketRetention = 2 * time.Minute

// RateLimiter bounds the rate of requests reaching the docker daemon. The
// ceiling can be retuned at runtime; Admit reads it fresh on every call.
type RateLimiter interface {
	Admit() bool
	SetLimit(limit int)
	Limit() int
	Close()
}

// memoryRateLimiter counts requests in minute-aligned buckets. Buckets older
// than two minutes are reclaimed inline on every call; only the current
// minute's count is ever binding.
type memoryRateLimiter struct {
	limit   atomic.Int64
	mu      sync.Mutex
	buckets map[time.Time]int
	now     func() time.Time
}

// NewMemoryRateLimiter constructs an in-process limiter with the given
// per-minute ceiling.
func NewMemoryRateLimiter(limit int) RateLimiter {
	rl := &memoryRateLimiter{
		buckets: make(map[time.Time]int),
		now:     time.Now,
	}
	rl.limit.Store(int64(limit))
	return rl
}

// Admit reports whether one more request fits in the current minute. At the
// ceiling it denies: with limit N, the N+1th call in a minute is refused.
func (rl *memoryRateLimiter) Admit() bool {
	limit := rl.limit.Load()
	if limit <= 0 {
		return true
	}
	minute := rl.now().Truncate(time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ts := range rl.buckets {
		if minute.Sub(ts) >= bucketRetention {
			delete(rl.buckets, ts)
		}
	}
	count := rl.buckets[minute]
	if int64(count) >= limit {
		return false
	}
	rl.buckets[minute] = count + 1
	return true
}

// SetLimit retunes the per-minute ceiling without resetting counters.
func (rl *memoryRateLimiter) SetLimit(limit int) {
	rl.limit.Store(int64(limit))
}

// Limit returns the current ceiling.
func (rl *memoryRateLimiter) Limit() int {
	return int(rl.limit.Load())
}

// Close is a no-op; cleanup happens inline in Admit.
func (rl *memoryRateLimiter) Close() {}
