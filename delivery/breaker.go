package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls when the circuit around a transport opens.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures that
	// opens the circuit. Zero disables the breaker.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before a probe is let through.
	ResetTimeout time.Duration
}

// Breaker wraps a Transport in a circuit breaker. Only transient failures
// count against the circuit; rate limits and permanent rejections are the
// transport working as intended.
type Breaker struct {
	next Transport
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker returns next unchanged when the threshold is zero.
func NewBreaker(next Transport, cfg BreakerConfig, logger *slog.Logger) Transport {
	if cfg.FailureThreshold <= 0 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	threshold := uint32(cfg.FailureThreshold)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "transport",
		MaxRequests: 1,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return Classify(err) != ClassTransient
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("transport circuit breaker state changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Send forwards to the wrapped transport unless the circuit is open.
func (b *Breaker) Send(ctx context.Context, destination string, payload Payload, opts Options) (Receipt, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, destination, payload, opts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Receipt{}, Transient("circuit open", err)
	}
	receipt, _ := res.(Receipt)
	return receipt, err
}

// State reports the breaker state for diagnostics.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
