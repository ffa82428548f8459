package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/flockwatch/flockwatch/internal/alert"
	"github.com/flockwatch/flockwatch/internal/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type healthResponse struct {
	Status        string                   `json:"status"`
	Timestamp     time.Time                `json:"timestamp"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	Database      *persistence.HealthCheck `json:"database,omitempty"`
	StreamClients int                      `json:"stream_clients"`
}

type windowsResponse struct {
	VideoID string                      `json:"video_id"`
	Count   int                         `json:"count"`
	Windows []persistence.WindowMetrics `json:"windows"`
}

type alertsResponse struct {
	VideoID string         `json:"video_id"`
	Count   int            `json:"count"`
	Alerts  []alert.Report `json:"alerts"`
}

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

// handleHealth reports daemon uptime and database connectivity. A failing
// database ping degrades the status but still answers 200; the monitor is
// for diagnosis, not liveness gating.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		StreamClients: s.hub.ClientCount(),
	}

	if s.deps.Health != nil {
		hc := s.deps.Health.Health(r.Context())
		resp.Database = &hc
		if !hc.Healthy {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleWindows returns the most recent window metric rows for a video.
func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if s.deps.Windows == nil {
		writeError(w, r, http.StatusServiceUnavailable, "window store not available")
		return
	}

	videoID := mux.Vars(r)["id"]
	limit := parseLimit(r, defaultListLimit)

	windows, err := s.deps.Windows.ListByVideo(r.Context(), videoID, persistence.TimeRange{}, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list windows")
		return
	}
	if windows == nil {
		windows = []persistence.WindowMetrics{}
	}

	writeJSON(w, http.StatusOK, windowsResponse{
		VideoID: videoID,
		Count:   len(windows),
		Windows: windows,
	})
}

// handleAlerts returns recent alert reports for a video from the in-process
// history ring.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, r, http.StatusServiceUnavailable, "alert history not available")
		return
	}

	videoID := mux.Vars(r)["id"]
	limit := parseLimit(r, defaultListLimit)

	alerts := s.deps.History.Recent(videoID, limit)
	if alerts == nil {
		alerts = []alert.Report{}
	}

	writeJSON(w, http.StatusOK, alertsResponse{
		VideoID: videoID,
		Count:   len(alerts),
		Alerts:  alerts,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeError(w, r, http.StatusNotFound, "the requested endpoint does not exist")
}

// parseLimit reads the limit query parameter, clamped to [1, maxListLimit].
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
