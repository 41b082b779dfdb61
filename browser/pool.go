package browser

import (
	"context"
	"fmt"
	"sync"
)

// Pool keeps a fixed set of browsing contexts for reuse across queries.
// Checkin resets the context first; a context that fails to reset is closed
// and replaced so the pool never shrinks.
type Pool struct {
	driver Driver
	free   chan Context

	mu     sync.Mutex
	closed bool
}

func NewPool(ctx context.Context, driver Driver, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}

	p := &Pool{
		driver: driver,
		free:   make(chan Context, size),
	}

	for i := 0; i < size; i++ {
		bctx, err := driver.NewContext(ctx)
		if err != nil {
			p.Close()

			return nil, err
		}

		p.free <- bctx
	}

	return p, nil
}

// Get checks out a context, blocking until one is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (Context, error) {
	select {
	case bctx, ok := <-p.free:
		if !ok {
			return nil, fmt.Errorf("%w: pool closed", ErrInfrastructure)
		}

		return bctx, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a context to the pool. Always call it, typically via defer, so
// a failing borrower cannot leak the slot.
func (p *Pool) Put(bctx Context) {
	if bctx == nil {
		return
	}

	if err := bctx.Reset(context.Background()); err != nil {
		_ = bctx.Close()

		fresh, err := p.driver.NewContext(context.Background())
		if err != nil {
			// Slot is lost until Close; callers will block on Get. The next
			// run restarts the driver anyway.
			return
		}

		bctx = fresh
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = bctx.Close()

		return
	}

	p.free <- bctx
}

func (p *Pool) Close() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	p.mu.Unlock()

	close(p.free)

	for bctx := range p.free {
		_ = bctx.Close()
	}
}
