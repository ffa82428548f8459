package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockwatch/flockwatch/internal/alert"
	"github.com/flockwatch/flockwatch/internal/persistence"
)

type fakeHealth struct {
	healthy bool
}

func (f *fakeHealth) Health(ctx context.Context) persistence.HealthCheck {
	hc := persistence.HealthCheck{Healthy: f.healthy, LastCheck: time.Now()}
	if !f.healthy {
		hc.Errors = []string{"connection refused"}
	}
	return hc
}

func (f *fakeHealth) Ping(ctx context.Context) error { return nil }

func (f *fakeHealth) Stats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{}
}

type fakeWindows struct {
	rows      []persistence.WindowMetrics
	lastLimit int
}

func (f *fakeWindows) Upsert(ctx context.Context, w persistence.WindowMetrics) error { return nil }

func (f *fakeWindows) Get(ctx context.Context, videoID string, windowStart time.Time) (*persistence.WindowMetrics, error) {
	return nil, nil
}

func (f *fakeWindows) ListByVideo(ctx context.Context, videoID string, tr persistence.TimeRange, limit int) ([]persistence.WindowMetrics, error) {
	f.lastLimit = limit
	var out []persistence.WindowMetrics
	for _, w := range f.rows {
		if w.VideoID == videoID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWindows) Scores(ctx context.Context, videoID string) ([]persistence.WindowMetrics, error) {
	return nil, nil
}

func (f *fakeWindows) Count(ctx context.Context) (int64, error) { return int64(len(f.rows)), nil }

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	s := NewServer(DefaultConfig(), deps)
	t.Cleanup(func() { s.hub.Close() })
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t, Deps{Health: &fakeHealth{healthy: true}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	require.NotNil(t, resp.Database)
	assert.True(t, resp.Database.Healthy)
}

func TestHealthEndpointDegraded(t *testing.T) {
	s := testServer(t, Deps{Health: &fakeHealth{healthy: false}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestWindowsEndpoint(t *testing.T) {
	windows := &fakeWindows{rows: []persistence.WindowMetrics{
		{VideoID: "vid-1", WindowStart: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), TotalComments: 42},
		{VideoID: "vid-1", WindowStart: time.Date(2025, 6, 1, 11, 50, 0, 0, time.UTC), TotalComments: 7},
		{VideoID: "vid-2", WindowStart: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), TotalComments: 3},
	}}
	s := testServer(t, Deps{Windows: windows})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/videos/vid-1/windows", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp windowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "vid-1", resp.VideoID)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Windows, 2)
	assert.Equal(t, int64(42), resp.Windows[0].TotalComments)
	assert.Equal(t, defaultListLimit, windows.lastLimit)
}

func TestWindowsEndpointLimitClamped(t *testing.T) {
	windows := &fakeWindows{}
	s := testServer(t, Deps{Windows: windows})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/videos/vid-1/windows?limit=9999", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, windows.lastLimit)

	var resp windowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Windows)
}

func TestWindowsEndpointUnavailable(t *testing.T) {
	s := testServer(t, Deps{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/videos/vid-1/windows", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	history := alert.NewHistory(10)
	history.Emit(alert.Report{VideoID: "vid-1", Score: 1.1})
	history.Emit(alert.Report{VideoID: "vid-2", Score: 0.9})
	history.Emit(alert.Report{VideoID: "vid-1", Score: 2.4})

	s := testServer(t, Deps{History: history})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/videos/vid-1/alerts", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp alertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Alerts, 2)
	// Newest first.
	assert.Equal(t, 2.4, resp.Alerts[0].Score)
	assert.Equal(t, 1.1, resp.Alerts[1].Score)
}

func TestNotFound(t *testing.T) {
	s := testServer(t, Deps{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Not Found", resp.Error)
}

func TestAlertStream(t *testing.T) {
	s := testServer(t, Deps{})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	sent := alert.Report{
		VideoID:     "vid-1",
		WindowStart: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Score:       1.8,
		Text:        "[ALERT – vid-1] @ 2025-06-01T12:00:00Z",
	}
	s.hub.Emit(sent)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got alert.Report
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "vid-1", got.VideoID)
	assert.Equal(t, 1.8, got.Score)
	assert.True(t, sent.WindowStart.Equal(got.WindowStart))
}

func TestAlertStreamClientDisconnect(t *testing.T) {
	s := testServer(t, Deps{})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)

	// Emitting with no clients must not panic or block.
	s.hub.Emit(alert.Report{VideoID: "vid-1"})
}
