// Package retry wraps outbound calls with exponential backoff and a
// per-identifier circuit breaker, so a persistently failing source is
// cut off instead of hammered.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// identifier's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config tunes backoff and breaker behaviour for an Executor.
type Config struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Breaker       BreakerConfig
	// Retryable optionally extends the default transient-error
	// classification.
	Retryable func(error) bool
}

// DefaultConfig matches the standard source-pipeline tuning.
func DefaultConfig() Config {
	return Config{
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		Breaker:       DefaultBreakerConfig(),
	}
}

// Executor runs functions with retries and per-identifier circuit
// breaking. One Executor is shared across the pipeline; breakers are
// keyed by caller-supplied identifiers (typically the source name).
// It is an injected dependency, never a package-level singleton.
type Executor struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      Config
	logger   *slog.Logger
}

// NewExecutor creates an executor with the given tuning.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = DefaultBreakerConfig()
	}
	return &Executor{
		breakers: make(map[string]*breaker),
		cfg:      cfg,
		logger:   logger,
	}
}

func (e *Executor) breakerFor(identifier string) *breaker {
	if b, ok := e.breakers[identifier]; ok {
		return b
	}
	b := &breaker{state: StateClosed}
	e.breakers[identifier] = b
	return b
}

// Snapshot returns the circuit state for an identifier, for health
// reporting. A never-used identifier reads as CLOSED.
func (e *Executor) Snapshot(identifier string) BreakerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.breakerFor(identifier)
	return BreakerSnapshot{
		State:        b.state,
		FailureCount: b.failureCount,
		SuccessCount: b.successCount,
		LastFailure:  b.lastFailure,
		NextRetry:    b.nextRetry,
	}
}

// Execute runs fn with up to maxRetries additional attempts after the
// first failure. Retries use exponential backoff with ±30% jitter,
// capped at MaxDelay; a server-supplied Retry-After hint takes
// precedence. Fatal errors and open circuits return immediately.
// Exhausting the attempts returns the last error — failure is never
// swallowed.
func (e *Executor) Execute(ctx context.Context, identifier string, maxRetries int, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if !e.admit(identifier) {
			return fmt.Errorf("%s: %w", identifier, ErrCircuitOpen)
		}

		err := fn(ctx)
		if err == nil {
			e.record(identifier, true)
			return nil
		}
		e.record(identifier, false)
		lastErr = err

		if !e.isRetryable(err) {
			return err
		}
		if attempt >= maxRetries {
			return lastErr
		}

		delay := e.backoffDelay(attempt, err)
		e.logger.Warn("retrying after transient error",
			"identifier", identifier,
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (e *Executor) admit(identifier string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakerFor(identifier).admit(time.Now())
}

func (e *Executor) record(identifier string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.breakerFor(identifier)
	if success {
		b.onSuccess()
	} else {
		b.onFailure(time.Now(), e.cfg.Breaker)
	}
}

// backoffDelay computes the delay before the given retry attempt
// (0-based) with ±30% jitter. A Retry-After hint on the error wins.
func (e *Executor) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := float64(e.cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= e.cfg.BackoffFactor
	}

	jitter := delay * 0.3
	delay += (rand.Float64()*2 - 1) * jitter

	if max := float64(e.cfg.MaxDelay); delay > max {
		delay = max
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// retryableStatus lists the HTTP status codes treated as transient.
var retryableStatus = map[int]bool{
	408: true,
	409: true,
	425: true,
	429: true,
	502: true,
	503: true,
	504: true,
}

// isRetryable classifies an error as transient (worth retrying) or
// fatal. Context cancellation and plain 4xx responses are fatal so a
// permanently bad request never causes a retry storm.
func (e *Executor) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var retryable *model.RetryableError
	if errors.As(err, &retryable) {
		return true
	}

	if e.cfg.Retryable != nil && e.cfg.Retryable(err) {
		return true
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if retryableStatus[httpErr.StatusCode] {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		return false
	}

	// Non-HTTP errors (network, DNS, etc.) are transient.
	return true
}
