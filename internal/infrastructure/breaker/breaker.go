// Package breaker builds circuit breakers that report their state to
// Prometheus and the log.
package breaker

import (
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/cartwise/backend/internal/logging"
	"github.com/cartwise/backend/internal/metrics"
)

// Config holds circuit breaker settings
type Config struct {
	Name             string
	FailureThreshold uint32        // Consecutive failures that open the breaker
	Timeout          time.Duration // Time spent open before probing again
	MaxRequests      uint32        // Probes allowed while half-open
	Interval         time.Duration // Closed-state count reset period, 0 never resets
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
}

// New creates a circuit breaker for calls returning T
func New[T any](cfg Config) *gobreaker.CircuitBreaker[T] {
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(StateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[BREAKER] state changed")
		},
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	return gobreaker.NewCircuitBreaker[T](settings)
}

// StateValue maps a breaker state to its gauge value (0=closed, 1=half-open, 2=open)
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
