package retry

import (
	"time"
)

// State is a circuit breaker's current mode.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// BreakerConfig tunes the per-identifier circuit breakers.
type BreakerConfig struct {
	// FailureThreshold failures within MonitoringPeriod open the circuit.
	FailureThreshold int
	MonitoringPeriod time.Duration
	// ResetTimeout is how long an open circuit rejects calls before
	// admitting a half-open trial.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig matches the standard source-pipeline tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MonitoringPeriod: time.Minute,
		ResetTimeout:     30 * time.Second,
	}
}

// breaker tracks failure state for one identifier. All access goes
// through Executor.mu.
type breaker struct {
	state         State
	failureCount  int
	successCount  int
	windowStart   time.Time // start of the current monitoring window
	lastFailure   time.Time
	nextRetry     time.Time
	trialInFlight bool // a half-open trial call is executing
}

// BreakerSnapshot is the observable state of one circuit.
type BreakerSnapshot struct {
	State        State
	FailureCount int
	SuccessCount int
	LastFailure  time.Time
	NextRetry    time.Time
}

// admit decides whether a call may proceed. Returns false to fail fast.
// Transitions OPEN→HALF_OPEN when the reset timeout has elapsed and
// reserves the single trial slot.
func (b *breaker) admit(now time.Time) bool {
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Before(b.nextRetry) {
			return false
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true
	case StateHalfOpen:
		// Exactly one trial call is permitted.
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return true
}

func (b *breaker) onSuccess() {
	b.successCount++
	b.trialInFlight = false
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failureCount = 0
	}
}

func (b *breaker) onFailure(now time.Time, cfg BreakerConfig) {
	b.trialInFlight = false
	b.lastFailure = now

	// Failures outside the monitoring window start a fresh count.
	if b.windowStart.IsZero() || now.Sub(b.windowStart) > cfg.MonitoringPeriod {
		b.windowStart = now
		b.failureCount = 0
	}
	b.failureCount++

	if b.state == StateHalfOpen || b.failureCount >= cfg.FailureThreshold {
		b.state = StateOpen
		b.nextRetry = now.Add(cfg.ResetTimeout)
	}
}
