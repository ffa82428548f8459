// Package alert turns classified windows into operator-facing reports. It
// runs the read-only forensic evidence queries, renders the textual report,
// and fans the result out to the configured sinks: structured log, stdout,
// and the live monitor stream.
package alert

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/patterns"
	"github.com/flockwatch/flockwatch/internal/persistence"
)

const (
	defaultPeriod        = 600 * time.Second
	defaultEvidenceLimit = 5
)

// TimelineEntry is one comment of the chronological evidence section.
type TimelineEntry struct {
	AuthorID    string    `json:"author_id"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
}

// Report is one finished alert report: the structured fields consumed by the
// monitor API and websocket stream, plus the rendered operator text.
type Report struct {
	VideoID     string                   `json:"video_id"`
	WindowStart time.Time                `json:"window_start"`
	Alerts      []patterns.Alert         `json:"alerts"`
	Score       float64                  `json:"score"`
	Salient     []baseline.Component     `json:"salient"`
	TopAuthors  []persistence.AuthorStat `json:"top_authors,omitempty"`
	Timeline    []TimelineEntry          `json:"timeline,omitempty"`
	Text        string                   `json:"text"`
	EmittedAt   time.Time                `json:"emitted_at"`
}

// EvidenceSource is the slice of the comments repository the reporter needs
// for forensic evidence.
type EvidenceSource interface {
	ListByVideo(ctx context.Context, videoID string, tr persistence.TimeRange, limit int) ([]persistence.Comment, error)
	TopAuthors(ctx context.Context, videoID string, tr TimeRange, limit int) ([]persistence.AuthorStat, error)
}

// TimeRange aliases the persistence range so EvidenceSource reads cleanly.
type TimeRange = persistence.TimeRange

// Reporter builds and emits alert reports.
type Reporter struct {
	comments EvidenceSource
	period   time.Duration
	limit    int
	sinks    []Sink
}

// NewReporter creates a reporter querying evidence over windows of the given
// period. Non-positive period falls back to the default 600s window.
func NewReporter(comments EvidenceSource, period time.Duration, sinks ...Sink) *Reporter {
	if period <= 0 {
		period = defaultPeriod
	}
	return &Reporter{
		comments: comments,
		period:   period,
		limit:    defaultEvidenceLimit,
		sinks:    sinks,
	}
}

// Report assembles the report for a flagged window and emits it to every
// sink. Evidence queries are best-effort: a failure is logged and the report
// renders without that section, because losing evidence must never suppress
// the alert itself.
func (r *Reporter) Report(ctx context.Context, m persistence.WindowMetrics, z baseline.ZVector, score float64, alerts []patterns.Alert) Report {
	rep := Report{
		VideoID:     m.VideoID,
		WindowStart: m.WindowStart.UTC(),
		Alerts:      alerts,
		Score:       score,
		Salient:     z.Salient(3),
		EmittedAt:   time.Now().UTC(),
	}

	wantTimeline, wantAuthors := evidenceNeeds(alerts)
	tr := persistence.TimeRange{From: rep.WindowStart, To: rep.WindowStart.Add(r.period)}

	if wantAuthors {
		authors, err := r.comments.TopAuthors(ctx, m.VideoID, tr, r.limit)
		if err != nil {
			log.Warn().Err(err).
				Str("video_id", m.VideoID).
				Time("window_start", rep.WindowStart).
				Msg("Top-author evidence query failed")
		} else {
			rep.TopAuthors = authors
		}
	}
	if wantTimeline {
		comments, err := r.comments.ListByVideo(ctx, m.VideoID, tr, r.limit)
		if err != nil {
			log.Warn().Err(err).
				Str("video_id", m.VideoID).
				Time("window_start", rep.WindowStart).
				Msg("Timeline evidence query failed")
		} else {
			rep.Timeline = timelineEntries(comments)
		}
	}

	rep.Text = Render(rep)
	for _, s := range r.sinks {
		s.Emit(rep)
	}
	return rep
}

// evidenceNeeds reports which evidence sections the fired alerts call for.
// A window can need both when categories of both kinds fire together.
func evidenceNeeds(alerts []patterns.Alert) (timeline, authors bool) {
	for _, a := range alerts {
		switch a.Evidence() {
		case patterns.EvidenceTopAuthors:
			authors = true
		default:
			timeline = true
		}
	}
	return timeline, authors
}

func timelineEntries(comments []persistence.Comment) []TimelineEntry {
	entries := make([]TimelineEntry, len(comments))
	for i, c := range comments {
		entries[i] = TimelineEntry{
			AuthorID:    c.AuthorID,
			Text:        c.Text,
			PublishedAt: c.PublishedAt,
		}
	}
	return entries
}
