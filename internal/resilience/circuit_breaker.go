package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Requests fail immediately
	StateHalfOpen                     // Probing whether the dependency recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the dependency while the circuit is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a flaky dependency (LLM, STT handshake)
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu            sync.Mutex
	state         CircuitState
	failures      int
	halfOpenCount int
	successCount  int
	lastFailTime  time.Time
	requests      int64
	failuresTotal int64

	onStateChange func(name string, from, to CircuitState)
	now           func() time.Time
}

// NewCircuitBreaker creates a breaker that opens after maxFailures consecutive failures
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  1,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Name returns the breaker's name
func (cb *CircuitBreaker) Name() string { return cb.name }

// OnStateChange registers a callback fired after every transition
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn when the circuit allows it and records the outcome.
// Context cancellation by the caller is not counted as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.release()
		return err
	}
	cb.RecordResult(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenCount = 1
		return true
	case StateHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false
	}
	return false
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenCount > 0 {
		cb.halfOpenCount--
	}
}

// RecordResult records the outcome of a call made outside Execute
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	if success {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successCount++
			if cb.successCount >= cb.halfOpenMax {
				cb.failures = 0
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.failuresTotal++
	cb.lastFailTime = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.halfOpenCount = 0
	cb.successCount = 0
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns request and failure totals since creation
func (cb *CircuitBreaker) Stats() (requests, failures int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.requests, cb.failuresTotal
}

// Reset forces the circuit closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.transition(StateClosed)
}
