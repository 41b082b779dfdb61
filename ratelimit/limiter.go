// Package ratelimit throttles outbound website fetches. The limiter tracks
// request timestamps in a sliding window and stretches the per-request delay
// when the recent rate crosses a threshold, with random jitter so concurrent
// workers never fire in lockstep.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultWindow     = time.Minute
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 5 * time.Second
	defaultPerWindow  = 60
	defaultJitterSpan = 500 * time.Millisecond
)

type Limiter struct {
	mu    sync.Mutex
	times []time.Time

	window     time.Duration
	baseDelay  time.Duration
	maxDelay   time.Duration
	perWindow  int
	jitterSpan time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

type Option func(*Limiter)

func WithBaseDelay(d time.Duration) Option {
	return func(l *Limiter) { l.baseDelay = d }
}

func WithMaxDelay(d time.Duration) Option {
	return func(l *Limiter) { l.maxDelay = d }
}

func WithPerWindow(n int) Option {
	return func(l *Limiter) { l.perWindow = n }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		window:     defaultWindow,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
		perWindow:  defaultPerWindow,
		jitterSpan: defaultJitterSpan,
		now:        time.Now,
		sleep:      ctxSleep,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Wait blocks for the adaptive delay, then records the request. It returns
// early with the context's error on cancellation, in which case the request
// is not recorded.
func (l *Limiter) Wait(ctx context.Context) error {
	delay := l.nextDelay()

	if err := l.sleep(ctx, delay); err != nil {
		return err
	}

	l.mu.Lock()
	l.times = append(l.times, l.now())
	l.mu.Unlock()

	return nil
}

// Pending reports how many requests are currently inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())

	return len(l.times)
}

func (l *Limiter) nextDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())

	delay := l.baseDelay
	if len(l.times) >= l.perWindow {
		delay *= 2
	}

	if delay > l.maxDelay {
		delay = l.maxDelay
	}

	delay += time.Duration(rand.Int63n(int64(l.jitterSpan)))

	return delay
}

// prune drops timestamps older than the window. Caller holds the lock.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)

	kept := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	l.times = kept
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
