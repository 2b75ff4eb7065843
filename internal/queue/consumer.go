package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one event.  A returned error is logged and the event
// is dropped; nothing is retried.
type Handler func(ctx context.Context, ev Event) error

// Pool runs a fixed number of workers reading from a bounded channel.
// Enqueue never blocks: when the buffer is full the event is refused.
type Pool struct {
	jobs    chan Event
	handle  Handler
	workers int
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a pool; call Start to launch the workers.
func NewPool(workers, size int, handle Handler, log *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		jobs:    make(chan Event, size),
		handle:  handle,
		workers: workers,
		log:     log.With("component", "notify-worker"),
	}
}

// Start launches the workers.  ctx is passed to every handler call.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.consumeLoop(ctx)
	}
}

// Enqueue hands ev to the workers.  It reports false when the pool is
// closed or its buffer is full.
func (p *Pool) Enqueue(ev Event) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- ev:
		return true
	default:
		return false
	}
}

// Close stops accepting events and waits until the buffered ones have been
// handled or ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notify queue: %w", ctx.Err())
	}
}

func (p *Pool) consumeLoop(ctx context.Context) {
	defer p.wg.Done()
	for ev := range p.jobs {
		p.handleEvent(ctx, ev)
	}
}

func (p *Pool) handleEvent(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("handler panicked", "kind", ev.Kind, "grievance_id", ev.GrievanceID, "panic", r)
		}
	}()
	if err := p.handle(ctx, ev); err != nil {
		p.log.Warn("handle event failed", "kind", ev.Kind, "grievance_id", ev.GrievanceID, "err", err)
	}
}
