// Package breaker shields the daemon's upstreams behind circuit breakers.
// A flapping comment source or sentiment service trips its breaker open and
// the pollers fall back to skipping ticks instead of hammering a dead host.
package breaker

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Config tunes one upstream's circuit breaker.
type Config struct {
	Name                string        `yaml:"name"`
	MaxRequests         uint32        `yaml:"max_requests"`         // Probes allowed while half-open
	Interval            time.Duration `yaml:"interval"`             // Closed-state count reset cadence
	Timeout             time.Duration `yaml:"timeout"`              // Open-state cooloff before probing
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"` // Trip after this many failures in a row
	ErrorRateThreshold  float64       `yaml:"error_rate_threshold"` // Trip when failure rate exceeds this
	MinRequests         uint32        `yaml:"min_requests"`         // Samples required before rate applies
}

// DefaultConfig returns the breaker tuning used for both upstreams unless
// overridden: trip on 3 straight failures, or >30% errors across 10+ calls.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         2,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
		ErrorRateThreshold:  0.30,
		MinRequests:         10,
	}
}

// Breaker wraps a gobreaker circuit breaker with the daemon's trip policy
// and state-change logging.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a circuit breaker for the named upstream.
func New(config Config) *Breaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 3
	}
	if config.ErrorRateThreshold <= 0 || config.ErrorRateThreshold > 1 {
		config.ErrorRateThreshold = 0.30
	}
	if config.MinRequests == 0 {
		config.MinRequests = 10
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.ConsecutiveFailures {
				return true
			}
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.ErrorRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			evt := log.Warn()
			if to == gobreaker.StateClosed {
				evt = log.Info()
			}
			evt.
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker, counting its outcome.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// Do runs an error-only fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the breaker's request counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the upstream this breaker guards.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// IsOpen reports whether err means the breaker refused the call outright.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
