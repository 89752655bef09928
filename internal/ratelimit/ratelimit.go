// Package ratelimit implements a per-source token-bucket limiter with a
// FIFO wait queue. Every outbound call to a job-board API goes through
// one of these.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAcquireTimeout is returned to a waiter that sat in the queue past
// the queue timeout. The caller holds no token and must re-check
// availability before proceeding.
var ErrAcquireTimeout = errors.New("rate limiter: queued acquire timed out")

const (
	sweepInterval       = 100 * time.Millisecond
	defaultQueueTimeout = 60 * time.Second
)

// Status is a point-in-time snapshot of a limiter.
type Status struct {
	Remaining float64
	ResetAt   time.Time
	Limited   bool
}

type waiter struct {
	ch       chan error
	enqueued time.Time
}

// Limiter is a token bucket: capacity equals the configured burst,
// tokens refill continuously at requests/per. Tokens never exceed
// capacity and refill is monotonic in wall-clock time.
type Limiter struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	queue      []*waiter

	queueTimeout time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewLimiter creates a limiter allowing requests per the given period,
// with burst capacity equal to requests. A background sweep drains the
// wait queue every 100ms; call Close when done.
func NewLimiter(requests int, per time.Duration) *Limiter {
	l := &Limiter{
		capacity:     float64(requests),
		refillRate:   float64(requests) / per.Seconds(),
		tokens:       float64(requests),
		lastRefill:   time.Now(),
		queueTimeout: defaultQueueTimeout,
		stop:         make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Close stops the background sweep and force-releases all waiters.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// refillLocked adds tokens for elapsed time. Caller holds l.mu.
func (l *Limiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// TryAcquire consumes one token if available, without blocking.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(time.Now())
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Acquire blocks until a token is available, the context is cancelled,
// or the queue timeout fires. Waiters are served strictly FIFO.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refillLocked(time.Now())
	// Fast path only when nobody is already queued, otherwise a late
	// arrival would jump the queue.
	if len(l.queue) == 0 && l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ch: make(chan error, 1), enqueued: time.Now()}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	select {
	case err := <-w.ch:
		return err
	case <-ctx.Done():
		l.remove(w)
		return fmt.Errorf("rate limiter acquire: %w", ctx.Err())
	case <-l.stop:
		l.remove(w)
		return ErrAcquireTimeout
	}
}

// remove takes w out of the queue if the sweep has not released it yet.
func (l *Limiter) remove(target *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.queue {
		if w == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

// sweep periodically refills the bucket, drains the queue FIFO, and
// force-releases waiters older than the queue timeout.
func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.drain(now)
		}
	}
}

func (l *Limiter) drain(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(now)

	kept := l.queue[:0]
	for _, w := range l.queue {
		if now.Sub(w.enqueued) > l.queueTimeout {
			w.ch <- ErrAcquireTimeout
			continue
		}
		if l.tokens >= 1 {
			l.tokens--
			w.ch <- nil
			continue
		}
		kept = append(kept, w)
	}
	l.queue = kept
}

// Status reports remaining tokens, when the bucket will next be full,
// and whether callers are currently being limited.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.refillLocked(now)

	missing := l.capacity - l.tokens
	var resetAt time.Time
	if missing <= 0 || l.refillRate <= 0 {
		resetAt = now
	} else {
		resetAt = now.Add(time.Duration(missing / l.refillRate * float64(time.Second)))
	}
	return Status{
		Remaining: l.tokens,
		ResetAt:   resetAt,
		Limited:   l.tokens < 1 || len(l.queue) > 0,
	}
}

// SourceLimit configures one source's rate contract.
type SourceLimit struct {
	Requests int
	Per      time.Duration
}

// Registry hands out one limiter per source key. It is an explicit
// object injected into the pipeline, not a process-wide singleton, so
// tests can build isolated instances.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	limits   map[string]SourceLimit
	fallback SourceLimit
}

// NewRegistry creates a registry with per-source limits and a fallback
// applied to sources with no explicit entry.
func NewRegistry(limits map[string]SourceLimit, fallback SourceLimit) *Registry {
	if fallback.Requests <= 0 {
		fallback = SourceLimit{Requests: 30, Per: time.Minute}
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		limits:   limits,
		fallback: fallback,
	}
}

// For returns the limiter for the given source, creating it on first use.
func (r *Registry) For(source string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[source]; ok {
		return l
	}
	limit, ok := r.limits[source]
	if !ok {
		limit = r.fallback
	}
	l := NewLimiter(limit.Requests, limit.Per)
	r.limiters[source] = l
	return l
}

// Close shuts down every limiter the registry created.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.limiters {
		l.Close()
	}
}
