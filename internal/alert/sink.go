package alert

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sink receives finished reports. Emit must not block the polling loop;
// sinks that fan out over the network buffer internally.
type Sink interface {
	Emit(rep Report)
}

// LogSink writes reports as structured log events.
type LogSink struct{}

// Emit logs the report with its categories and score as fields.
func (LogSink) Emit(rep Report) {
	categories := make([]string, len(rep.Alerts))
	for i, a := range rep.Alerts {
		categories[i] = string(a)
	}
	log.Warn().
		Str("video_id", rep.VideoID).
		Time("window_start", rep.WindowStart).
		Strs("alerts", categories).
		Float64("score", rep.Score).
		Msg("Coordination alert")
}

// ConsoleSink writes the rendered report text to a writer, stdout in the
// daemon. Write errors are logged and dropped; alert delivery stays
// best-effort.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a console sink over w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Emit writes the report text.
func (c *ConsoleSink) Emit(rep Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, rep.Text); err != nil {
		log.Warn().Err(err).Msg("Failed to write alert report")
	}
}

// History retains the most recent reports in memory for the monitor API.
// Safe for concurrent use by the pollers and HTTP handlers.
type History struct {
	mu      sync.RWMutex
	reports []Report
	head    int
	n       int
}

// NewHistory creates a history ring holding up to capacity reports.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 100
	}
	return &History{reports: make([]Report, capacity)}
}

// Emit records the report, evicting the oldest once full.
func (h *History) Emit(rep Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.reports) {
		h.reports[(h.head+h.n)%len(h.reports)] = rep
		h.n++
		return
	}
	h.reports[h.head] = rep
	h.head = (h.head + 1) % len(h.reports)
}

// Recent returns up to limit reports for the video, newest first. An empty
// videoID matches every video; limit <= 0 returns all retained matches.
func (h *History) Recent(videoID string, limit int) []Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Report
	for i := h.n - 1; i >= 0; i-- {
		rep := h.reports[(h.head+i)%len(h.reports)]
		if videoID != "" && rep.VideoID != videoID {
			continue
		}
		out = append(out, rep)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
