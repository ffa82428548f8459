// Package client assembles the guard stack every outbound request passes
// through: daily budget, token-bucket rate limit, then circuit breaker, in
// that order so a spent budget never burns limiter tokens and a tripped
// breaker never consumes budget.
package client

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flockwatch/flockwatch/internal/net/breaker"
	"github.com/flockwatch/flockwatch/internal/net/budget"
	"github.com/flockwatch/flockwatch/internal/net/ratelimit"
)

const userAgent = "flockwatch/1.0"

// WrapperConfig configures the guarded transport for one upstream. Any nil
// guard is skipped.
type WrapperConfig struct {
	Upstream       string
	RateLimiter    *ratelimit.Limiter
	CircuitBreaker *breaker.Breaker
	BudgetTracker  *budget.Tracker
}

// Wrapper wraps an HTTP RoundTripper with rate limiting, circuit breaking,
// and budget tracking.
type Wrapper struct {
	config    WrapperConfig
	transport http.RoundTripper
}

// NewWrapper creates a guarded transport around base (http.DefaultTransport
// when nil).
func NewWrapper(config WrapperConfig, base http.RoundTripper) *Wrapper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Wrapper{config: config, transport: base}
}

// NewHTTPClient returns an http.Client whose transport runs the full guard
// stack for the upstream.
func NewHTTPClient(config WrapperConfig, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewWrapper(config, http.DefaultTransport),
		Timeout:   timeout,
	}
}

// RoundTrip implements http.RoundTripper with the full guard stack.
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	// Budget first: fail fast before spending limiter tokens. Warnings are
	// not failures, they surface through the poller's budget stats instead.
	if w.config.BudgetTracker != nil {
		if err := w.config.BudgetTracker.Allow(); err != nil && budget.IsExhausted(err) {
			return nil, &UpstreamError{
				Upstream: w.config.Upstream,
				Type:     "budget",
				Err:      err,
			}
		}
	}

	if w.config.RateLimiter != nil {
		if err := w.config.RateLimiter.Wait(req.Context(), req.URL.Host); err != nil {
			return nil, &UpstreamError{
				Upstream: w.config.Upstream,
				Type:     "rate_limit",
				Err:      fmt.Errorf("rate limit wait failed: %w", err),
			}
		}
	}

	var response *http.Response

	execute := func() (interface{}, error) {
		if w.config.BudgetTracker != nil {
			if err := w.config.BudgetTracker.Consume(); err != nil && budget.IsExhausted(err) {
				return nil, &UpstreamError{
					Upstream: w.config.Upstream,
					Type:     "budget",
					Err:      err,
				}
			}
		}

		resp, err := w.transport.RoundTrip(req)
		if err != nil {
			return nil, &UpstreamError{
				Upstream: w.config.Upstream,
				Type:     "transport",
				Err:      err,
			}
		}

		if resp.StatusCode >= 400 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, &UpstreamError{
				Upstream:   w.config.Upstream,
				Type:       "http_error",
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("HTTP %d error", resp.StatusCode),
			}
		}

		response = resp
		return nil, nil
	}

	var err error
	if w.config.CircuitBreaker != nil {
		_, err = w.config.CircuitBreaker.Execute(execute)
	} else {
		_, err = execute()
	}
	if err != nil {
		if breaker.IsOpen(err) {
			return nil, &UpstreamError{
				Upstream: w.config.Upstream,
				Type:     "circuit",
				Err:      err,
			}
		}
		return nil, err
	}

	return response, nil
}

// UpstreamError carries which upstream and which guard (or transport stage)
// produced the failure.
type UpstreamError struct {
	Upstream   string `json:"upstream"`
	Type       string `json:"type"` // "rate_limit", "budget", "circuit", "transport", "http_error"
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s %s error (HTTP %d): %v", e.Upstream, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s %s error: %v", e.Upstream, e.Type, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if the error came from the rate limiter
func (e *UpstreamError) IsRateLimited() bool {
	return e.Type == "rate_limit"
}

// IsBudgetExhausted returns true if the error came from the budget tracker
func (e *UpstreamError) IsBudgetExhausted() bool {
	return e.Type == "budget"
}

// IsCircuitOpen returns true if the error came from an open circuit breaker
func (e *UpstreamError) IsCircuitOpen() bool {
	return e.Type == "circuit"
}
