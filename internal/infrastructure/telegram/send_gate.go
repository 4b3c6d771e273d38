package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// SendGate bounds concurrent outbound sends and keeps a minimum spacing
// between their starts.
type SendGate struct {
	sem     *semaphore.Weighted
	spacing time.Duration

	mu       sync.Mutex
	lastSend time.Time
	now      func() time.Time
}

func NewSendGate(concurrency int64, spacing time.Duration) *SendGate {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SendGate{
		sem:     semaphore.NewWeighted(concurrency),
		spacing: spacing,
		now:     time.Now,
	}
}

// Acquire blocks until a slot is free and the spacing has elapsed. The
// returned func must be called once the send completes.
func (g *SendGate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if wait := g.reserve(); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			g.sem.Release(1)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	var once sync.Once
	return func() { once.Do(func() { g.sem.Release(1) }) }, nil
}

// reserve claims the next send slot and returns how long to wait for it.
func (g *SendGate) reserve() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	next := g.lastSend.Add(g.spacing)
	if next.Before(now) {
		next = now
	}
	g.lastSend = next
	return next.Sub(now)
}
