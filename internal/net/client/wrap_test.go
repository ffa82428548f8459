package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockwatch/flockwatch/internal/net/breaker"
	"github.com/flockwatch/flockwatch/internal/net/budget"
)

func TestWrapper_SetsUserAgent(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	httpClient := NewHTTPClient(WrapperConfig{Upstream: "source-api"}, 5*time.Second)
	resp, err := httpClient.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "flockwatch/1.0", gotUA.Load())
}

func TestWrapper_BudgetExhaustionFailsBeforeTransport(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	tracker := budget.NewTracker("source-api", 1, 0, 0.99)
	require.NoError(t, tracker.Consume()) // spend the whole allowance

	wrapper := NewWrapper(WrapperConfig{
		Upstream:      "source-api",
		BudgetTracker: tracker,
	}, nil)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = wrapper.RoundTrip(req)
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.True(t, upErr.IsBudgetExhausted())
	assert.True(t, budget.IsExhausted(err), "budget error stays reachable through the wrap")
	assert.Zero(t, hits.Load(), "exhausted budget must not reach the upstream")
}

func TestWrapper_HTTPErrorStatusBecomesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	httpClient := NewHTTPClient(WrapperConfig{Upstream: "source-api"}, 5*time.Second)
	_, err := httpClient.Get(server.URL)
	require.Error(t, err)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "http_error", upErr.Type)
	assert.Equal(t, http.StatusInternalServerError, upErr.StatusCode)
}

func TestWrapper_CircuitOpensAndShortCircuits(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := breaker.DefaultConfig("source-api")
	cfg.ConsecutiveFailures = 2
	wrapper := NewWrapper(WrapperConfig{
		Upstream:       "source-api",
		CircuitBreaker: breaker.New(cfg),
	}, nil)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := wrapper.RoundTrip(req)
		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, "http_error", upErr.Type)
	}

	_, err = wrapper.RoundTrip(req)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.True(t, upErr.IsCircuitOpen())
	assert.True(t, breaker.IsOpen(err))
	assert.Equal(t, int64(2), hits.Load(), "open breaker must not reach the upstream")
}

func TestWrapper_TransportErrorsAreTyped(t *testing.T) {
	wrapper := NewWrapper(WrapperConfig{Upstream: "source-api"}, roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	req, err := http.NewRequest(http.MethodGet, "http://source.invalid/", nil)
	require.NoError(t, err)

	_, err = wrapper.RoundTrip(req)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "transport", upErr.Type)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
