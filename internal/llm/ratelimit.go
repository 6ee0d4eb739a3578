package llm

import (
	"context"
	"sync"
	"time"
)

// bucket is a token bucket refilled lazily from the clock. A nil bucket
// never blocks.
type bucket struct {
	mu       sync.Mutex
	interval time.Duration
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// newBucket allows rps calls per second with burst headroom. It returns nil
// when rps <= 0.
func newBucket(rps float64, burst int) *bucket {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	interval := time.Duration(float64(time.Second) / rps)
	if interval <= 0 {
		interval = time.Nanosecond
	}
	return &bucket{
		interval: interval,
		capacity: float64(burst),
		tokens:   float64(burst),
		now:      time.Now,
	}
}

// reserve takes one token and returns how long the caller must wait before
// using it.
func (b *bucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if !b.last.IsZero() {
		b.tokens += float64(now.Sub(b.last)) / float64(b.interval)
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.last = now
	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens * float64(b.interval))
}

// cancel returns a reserved token after the caller gave up waiting.
func (b *bucket) cancel() {
	b.mu.Lock()
	b.tokens++
	b.mu.Unlock()
}

// Wait blocks until a token is available or ctx is done.
func (b *bucket) Wait(ctx context.Context) error {
	if b == nil {
		return ctx.Err()
	}
	d := b.reserve()
	if d == 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}
