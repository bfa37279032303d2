package llm

import (
	"context"

	"github.com/b00y0h/barberbot/internal/observability"
	"github.com/b00y0h/barberbot/internal/resilience"
)

// Breaker guards a provider with a circuit breaker
type Breaker struct {
	next Provider
	cb   *resilience.CircuitBreaker
}

// NewBreaker wraps next. State changes are exported as the circuit breaker gauge.
func NewBreaker(next Provider, cb *resilience.CircuitBreaker) *Breaker {
	logger := observability.ForComponent("llm")
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
	})
	return &Breaker{next: next, cb: cb}
}

// Converse forwards to the wrapped provider unless the circuit is open
func (b *Breaker) Converse(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := b.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = b.next.Converse(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// State exposes the breaker state for readiness checks
func (b *Breaker) State() resilience.CircuitState {
	return b.cb.State()
}
