// Package breaker guards calls to external dependencies with a circuit
// breaker. The fallback is always an UpstreamUnavailable error; nothing is
// ever synthesised in place of a real response.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/sony/gobreaker/v2"
)

// State mirrors gobreaker's states under our own names.
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half-open"
	StateOpen     State = "open"
)

// Settings configures one breaker.
type Settings struct {
	// FailureThreshold trips the breaker once this many calls have failed
	// within the current window.
	FailureThreshold uint32

	// Window is how long failures are accumulated in the closed state before
	// the counts reset. Zero never resets until a success-driven transition.
	Window time.Duration

	// Cooldown is how long the breaker stays open before allowing trial calls.
	Cooldown time.Duration

	// HalfOpenTrials is how many trial calls may run while half-open, and
	// how many must succeed to close again.
	HalfOpenTrials uint32
}

// DefaultSettings are used when a Registry is asked for an unknown name.
var DefaultSettings = Settings{
	FailureThreshold: 5,
	Window:           time.Minute,
	Cooldown:         30 * time.Second,
	HalfOpenTrials:   1,
}

// StateRecorder is notified on every transition. *metrics.Metrics satisfies it.
type StateRecorder interface {
	BreakerState(dependency, from, to string, value float64)
}

// Breaker wraps one dependency.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[[]byte]
}

// New builds a breaker for the named dependency.
func New(name string, s Settings, logger *slog.Logger, rec StateRecorder) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultSettings.FailureThreshold
	}
	if s.HalfOpenTrials == 0 {
		s.HalfOpenTrials = DefaultSettings.HalfOpenTrials
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultSettings.Cooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	threshold := s.FailureThreshold
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenTrials,
		Interval:    s.Window,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.TotalFailures >= threshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"dependency", name,
				"from", from.String(),
				"to", to.String(),
			)
			if rec != nil {
				rec.BreakerState(name, from.String(), to.String(), stateValue(to))
			}
		},
	}

	if rec != nil {
		rec.BreakerState(name, "", gobreaker.StateClosed.String(), 0)
	}
	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker[[]byte](st)}
}

// callerGone marks a call abandoned because the caller's own context ended.
// It says nothing about the dependency's health.
type callerGone struct{ err error }

func (e callerGone) Error() string { return e.err.Error() }
func (e callerGone) Unwrap() error { return e.err }

// isSuccessful decides what counts against the breaker. A confirmed "not
// found" is a healthy answer from the dependency, and so is a call the caller
// walked away from.
func isSuccessful(err error) bool {
	var gone callerGone
	return err == nil || domain.IsKind(err, domain.KindResourceNotFound) || errors.As(err, &gone)
}

// Execute runs fn through the breaker. When the breaker is open, or its
// half-open trial budget is spent, fn is not called and the result is
// UpstreamUnavailable. Errors from fn that are not already domain errors are
// reported as UpstreamUnavailable too.
//
// If ctx ends, the caller gets ctx's error back and the breaker is not
// charged. The exception is a half-open trial call: one that never finished cannot
// close the breaker, so it counts as a failure.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := b.cb.Execute(func() ([]byte, error) {
		body, err := fn(ctx)
		if err != nil && ctx.Err() != nil && b.cb.State() != gobreaker.StateHalfOpen {
			return nil, callerGone{err: ctx.Err()}
		}
		return body, err
	})
	if err == nil {
		return body, nil
	}

	var gone callerGone
	switch {
	case errors.As(err, &gone):
		return nil, gone.err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, domain.ErrUpstreamUnavailable(b.name, err)
	case domain.IsKind(err, domain.KindResourceNotFound), domain.IsKind(err, domain.KindUpstreamUnavailable):
		return nil, err
	default:
		return nil, domain.ErrUpstreamUnavailable(b.name, err)
	}
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state. Reading it may itself move an open
// breaker to half-open once the cooldown has passed.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Failures is the failure count in the current window.
func (b *Breaker) Failures() uint32 {
	return b.cb.Counts().TotalFailures
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
