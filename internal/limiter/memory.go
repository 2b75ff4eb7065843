package limiter

import (
	"context"
	"sync"
	"time"
)

// attempts is one identity's slot in the lock table.  times is guarded by
// mu; refs is guarded by Memory.mu and counts goroutines holding or
// waiting for mu.
type attempts struct {
	mu    sync.Mutex
	times []time.Time
	refs  int
}

// Memory keeps attempt timestamps in process memory.  State is lost on
// restart.  Each identity has its own mutex so bursts against one identity
// never contend with another.
type Memory struct {
	window time.Duration
	limit  int

	mu      sync.Mutex
	entries map[string]*attempts

	done   chan struct{}
	closed bool
}

// NewMemory returns an in-process limiter.  A background goroutine sweeps
// idle identities once per window until Close is called.
func NewMemory(window time.Duration, limit int) *Memory {
	m := &Memory{
		window:  window,
		limit:   limit,
		entries: make(map[string]*attempts),
		done:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

// acquire locks the entry for key, creating it when absent.
func (m *Memory) acquire(key string) *attempts {
	m.mu.Lock()
	a, ok := m.entries[key]
	if !ok {
		a = &attempts{}
		m.entries[key] = a
	}
	a.refs++
	m.mu.Unlock()

	a.mu.Lock()
	return a
}

// release unlocks the entry and drops it from the table once nobody else
// holds it and it has no attempts left.
func (m *Memory) release(key string, a *attempts) {
	a.mu.Unlock()

	m.mu.Lock()
	a.refs--
	if a.refs == 0 && len(a.times) == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// prune drops timestamps older than the window.  Must be called with a.mu held.
func (m *Memory) prune(a *attempts, now time.Time) {
	i := 0
	for i < len(a.times) && now.Sub(a.times[i]) > m.window {
		i++
	}
	if i > 0 {
		a.times = append(a.times[:0], a.times[i:]...)
	}
}

func (m *Memory) Check(_ context.Context, key string, now time.Time) (Decision, error) {
	a := m.acquire(key)
	defer m.release(key, a)

	m.prune(a, now)
	n := len(a.times)
	if n >= m.limit {
		return Decision{Count: n, RetryAfter: retryAfter(a.times[0], now, m.window)}, nil
	}
	return Decision{Allowed: true, Count: n}, nil
}

func (m *Memory) CheckAndRecord(_ context.Context, key string, now time.Time) (Decision, error) {
	a := m.acquire(key)
	defer m.release(key, a)

	m.prune(a, now)
	n := len(a.times)
	if n >= m.limit {
		return Decision{Count: n, RetryAfter: retryAfter(a.times[0], now, m.window)}, nil
	}
	m.insert(a, now)
	return Decision{Allowed: true, Count: n + 1}, nil
}

func (m *Memory) RecordFailure(_ context.Context, key string, now time.Time) error {
	a := m.acquire(key)
	defer m.release(key, a)

	m.prune(a, now)
	m.insert(a, now)
	return nil
}

// insert adds now to the attempt list.  Must be called with a.mu held.
func (m *Memory) insert(a *attempts, now time.Time) {
	// keep the slice ordered even if clocks of concurrent callers disagree
	i := len(a.times)
	for i > 0 && a.times[i-1].After(now) {
		i--
	}
	a.times = append(a.times, time.Time{})
	copy(a.times[i+1:], a.times[i:])
	a.times[i] = now
}

func (m *Memory) Reset(_ context.Context, key string) error {
	a := m.acquire(key)
	a.times = nil
	m.release(key, a)
	return nil
}

// Sweep prunes every idle identity against now and removes empty ones.
func (m *Memory) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, a := range m.entries {
		if a.refs > 0 {
			continue
		}
		m.prune(a, now)
		if len(a.times) == 0 {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Sweep(time.Now())
		case <-m.done:
			return
		}
	}
}

// Close stops the sweeper.  It is safe to call more than once.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.done)
		m.closed = true
	}
}

// size reports the number of tracked identities.
func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
