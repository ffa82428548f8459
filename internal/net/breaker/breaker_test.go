package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("source-api")
	cfg.ConsecutiveFailures = 3
	b := New(cfg)

	boom := errors.New("upstream down")
	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return boom })
		require.ErrorIs(t, err, boom, "failures below the trip point pass through")
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Do(func() error { return nil })
	require.Error(t, err)
	assert.True(t, IsOpen(err), "open breaker refuses calls without running them")
}

func TestBreaker_TripsOnErrorRate(t *testing.T) {
	cfg := DefaultConfig("sentiment")
	cfg.ConsecutiveFailures = 100 // out of the way, rate rule under test
	cfg.MinRequests = 4
	cfg.ErrorRateThreshold = 0.5
	b := New(cfg)

	boom := errors.New("flaky")
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom }) // 2/4 failed, at threshold with enough samples

	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_RateNeedsMinimumSamples(t *testing.T) {
	cfg := DefaultConfig("sentiment")
	cfg.ConsecutiveFailures = 100
	cfg.MinRequests = 10
	cfg.ErrorRateThreshold = 0.5
	b := New(cfg)

	boom := errors.New("flaky")
	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })

	assert.Equal(t, gobreaker.StateClosed, b.State(),
		"error rate must not trip before min_requests samples")
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cfg := DefaultConfig("source-api")
	cfg.ConsecutiveFailures = 1
	cfg.MaxRequests = 1
	cfg.Timeout = 20 * time.Millisecond
	b := New(cfg)

	b.Do(func() error { return errors.New("down") })
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, b.Do(func() error { return nil }), "half-open probe should run")
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ExecuteReturnsResult(t *testing.T) {
	b := New(DefaultConfig("source-api"))

	got, err := b.Execute(func() (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestIsOpen_OrdinaryErrorsAreNot(t *testing.T) {
	assert.False(t, IsOpen(errors.New("just broken")))
	assert.True(t, IsOpen(gobreaker.ErrOpenState))
	assert.True(t, IsOpen(gobreaker.ErrTooManyRequests))
}

func TestNew_ZeroConfigGetsGuardrails(t *testing.T) {
	b := New(Config{Name: "source-api"})
	assert.Equal(t, "source-api", b.Name())
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
