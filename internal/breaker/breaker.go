// Package breaker wraps github.com/sony/gobreaker with a fail-fast
// circuit breaker that only counts failures of a configured kind, and
// exposes the three-state CLOSED/OPEN/HALF_OPEN model directly.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/positivef/udo-sync/internal/domain"
	"github.com/positivef/udo-sync/internal/metrics"
)

// ErrCircuitOpen is returned by Call when the breaker is OPEN and the call
// is rejected without invoking the wrapped work.
var ErrCircuitOpen = errors.New("breaker: circuit open")

// DefaultFailureThreshold and DefaultRecoveryTimeout match the defaults.
const (
	DefaultFailureThreshold uint32 = 5
	DefaultRecoveryTimeout         = 60 * time.Second
)

// IsTrackedFailure decides whether an error returned by wrapped work counts
// toward the breaker's failure threshold. Errors for which this returns
// false are re-raised to the caller without affecting breaker state.
type IsTrackedFailure func(error) bool

// Options configures a new Breaker.
type Options struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
	// IsTrackedFailure defaults to "every non-nil error is tracked".
	IsTrackedFailure IsTrackedFailure
	// Metrics receives state-transition and fast-fail observations. A nil
	// Registry (the default) is a no-op.
	Metrics *metrics.Registry
}

// Breaker is a fail-fast wrapper around a unit of work.
type Breaker struct {
	cb        *gobreaker.TwoStepCircuitBreaker
	isTracked IsTrackedFailure
	metrics   *metrics.Registry
}

// New constructs a Breaker per Options.
func New(opts Options) *Breaker {
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = DefaultFailureThreshold
	}
	timeout := opts.RecoveryTimeout
	if timeout == 0 {
		timeout = DefaultRecoveryTimeout
	}
	isTracked := opts.IsTrackedFailure
	if isTracked == nil {
		isTracked = func(error) bool { return true }
	}

	m := opts.Metrics
	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.ObserveBreakerTransition(to.String())
		},
	}

	return &Breaker{
		cb:        gobreaker.NewTwoStepCircuitBreaker(settings),
		isTracked: isTracked,
		metrics:   m,
	}
}

// Call invokes work through the breaker. If the breaker is OPEN, work is
// never invoked and ErrCircuitOpen is returned immediately.
//
// Uses gobreaker's two-step form (Allow/done) rather than Execute so that an
// untracked failure can be reported to the caller without being recorded
// as a success or a failure (Allow has already counted the request),
// matching
// circuit_breaker.py's behavior of an uncaught exception bypassing both
// _on_success and _on_failure. Routing an untracked failure through Execute
// as a success would instead reset gobreaker's consecutive-failure streak,
// letting it absorb a tracked failure run that an untracked call happens to
// interrupt.
func (b *Breaker) Call(work func() (any, error)) (any, error) {
	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.metrics.ObserveBreakerRejection()
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	res, werr := work()
	if werr != nil && !b.isTracked(werr) {
		return res, werr
	}
	done(werr == nil)
	return res, werr
}

// State reports the breaker's current CLOSED/OPEN/HALF_OPEN state.
func (b *Breaker) State() domain.CircuitState {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return domain.CircuitOpen
	case gobreaker.StateHalfOpen:
		return domain.CircuitHalfOpen
	default:
		return domain.CircuitClosed
	}
}

// Counts returns the breaker's current request/failure counters, mainly
// useful for diagnostics and tests.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}
