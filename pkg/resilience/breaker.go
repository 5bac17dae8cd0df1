package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrOpen is returned when the breaker rejects a call.
	ErrOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when a call exceeds the configured timeout.
	ErrTimeout = errors.New("resilience: operation timeout")
)

// callerDone carries the error of a call whose caller had already given up.
// It never counts against the backend.
type callerDone struct{ err error }

func (c callerDone) Error() string { return c.err.Error() }
func (c callerDone) Unwrap() error { return c.err }

// Breaker guards calls to one backend with a gobreaker circuit breaker and
// a per-call timeout. State changes are logged and reported to metrics.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

// NewBreaker creates a breaker. Errors for which expected returns true are
// passed through to the caller without counting as failures; nil counts
// every error.
func NewBreaker(name string, config ResilientConfig, collector metrics.Collector, expected func(error) bool) *Breaker {
	collector = metrics.OrNoOp(collector)
	logger := logging.L().Named("resilience").With(zap.String("breaker", name))

	b := &Breaker{
		name:    name,
		timeout: config.Timeout,
		metrics: collector,
		logger:  logger,
	}

	cbc := config.CircuitBreakerConfig
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cbc.MaxRequests,
		Interval:    cbc.Interval,
		Timeout:     cbc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			c := Counts{
				Requests:             counts.Requests,
				TotalSuccesses:       counts.TotalSuccesses,
				TotalFailures:        counts.TotalFailures,
				ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
				ConsecutiveFailures:  counts.ConsecutiveFailures,
			}
			if cbc.ReadyToTrip != nil {
				return cbc.ReadyToTrip(c)
			}
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var cd callerDone
			if err == nil || errors.Is(err, context.Canceled) || errors.As(err, &cd) {
				return true
			}
			return expected != nil && expected(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, toCircuitState(to))
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)

	logger.Debug("breaker initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", cbc.MaxRequests),
		zap.Duration("circuit_interval", cbc.Interval),
		zap.Duration("circuit_timeout", cbc.Timeout),
	)

	return b
}

func toCircuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current circuit state.
func (b *Breaker) State() metrics.CircuitState {
	return toCircuitState(b.cb.State())
}

// Execute runs fn through the breaker with the configured timeout. A
// rejected call returns ErrOpen and a call that fails because the breaker's
// own timeout expired returns ErrTimeout; any other error from fn is
// returned as is. Failures after the caller's context ended, by cancellation
// or its own deadline, do not count against the backend.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	parent := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := b.cb.Execute(func() (interface{}, error) {
		err := fn(ctx)
		if err != nil && parent.Err() != nil {
			return nil, callerDone{err: err}
		}
		return nil, err
	})
	if err == nil {
		return nil
	}

	var cd callerDone
	if errors.As(err, &cd) {
		return cd.err
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("circuit breaker open - request rejected", zap.String("operation", operation))
		return fmt.Errorf("%w: %s %s", ErrOpen, b.name, operation)
	}

	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		b.logger.Warn("operation timeout",
			zap.String("operation", operation),
			zap.Duration("timeout", b.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("%w: %s %s after %v", ErrTimeout, b.name, operation, b.timeout)
	}

	return err
}
