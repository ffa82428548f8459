// Package replay rebuilds a video's rolling baseline from persisted history.
// Historical comments are bucketed into fixed windows and driven through the
// evaluate → score → classify → upsert → update pipeline in chronological
// order, exactly as the live poller would have seen them. Replay is
// idempotent: scores are a pure function of the ordered window sequence, so
// re-running restores identical rows.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/patterns"
	"github.com/flockwatch/flockwatch/internal/persistence"
	"github.com/flockwatch/flockwatch/internal/window"
)

// Summary reports what one replay pass covered.
type Summary struct {
	VideoID     string    `json:"video_id"`
	Windows     int       `json:"windows"`
	Skipped     int       `json:"skipped"`
	Scored      int       `json:"scored"`
	Alerts      int       `json:"alerts"`
	FirstWindow time.Time `json:"first_window,omitempty"`
	LastWindow  time.Time `json:"last_window,omitempty"`
	Elapsed     time.Duration
}

// Engine replays persisted comment history through a baseline.
type Engine struct {
	aggregator *window.Aggregator
	windows    persistence.WindowsRepo
	scorer     *baseline.Scorer
	period     time.Duration
}

// NewEngine creates a replay engine bucketing history at the given period.
func NewEngine(aggregator *window.Aggregator, windows persistence.WindowsRepo, scorer *baseline.Scorer, period time.Duration) *Engine {
	if period <= 0 {
		period = 600 * time.Second
	}
	return &Engine{
		aggregator: aggregator,
		windows:    windows,
		scorer:     scorer,
		period:     period,
	}
}

// Replay sweeps the video's full history in ascending window order, scoring
// each occupied bucket against the baseline state accumulated so far and
// upserting the result. Zero-volume buckets are skipped entirely: silence is
// absence of behavior, not a behavior to learn. Alerts found during replay
// are logged rather than streamed; they describe the past.
//
// Each window is evaluated before it is added to history, so no window is
// judged against itself. Afterwards the baseline holds the last MAX_WINDOWS
// occupied windows.
func (e *Engine) Replay(ctx context.Context, videoID string, b *baseline.Baseline) (Summary, error) {
	start := time.Now()
	summary := Summary{VideoID: videoID}

	err := e.aggregator.AggregateAll(ctx, videoID, e.period, func(m persistence.WindowMetrics) error {
		if m.TotalComments == 0 {
			summary.Skipped++
			return nil
		}

		if z, ok := b.Evaluate(m); ok {
			score := e.scorer.Score(z)
			m.CoordinationScore = &score
			summary.Scored++

			if alerts := patterns.Classify(z, m); len(alerts) > 0 {
				summary.Alerts += len(alerts)
				categories := make([]string, len(alerts))
				for i, a := range alerts {
					categories[i] = string(a)
				}
				log.Info().
					Str("video_id", videoID).
					Time("window_start", m.WindowStart).
					Strs("alerts", categories).
					Float64("score", score).
					Msg("Historical window flagged during replay")
			}
		}

		if err := e.windows.Upsert(ctx, m); err != nil {
			return fmt.Errorf("failed to upsert replayed window: %w", err)
		}
		b.Update(m)

		if summary.Windows == 0 {
			summary.FirstWindow = m.WindowStart
		}
		summary.LastWindow = m.WindowStart
		summary.Windows++
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("failed to replay %s: %w", videoID, err)
	}

	summary.Elapsed = time.Since(start)
	log.Info().
		Str("video_id", videoID).
		Int("windows", summary.Windows).
		Int("scored", summary.Scored).
		Int("alerts", summary.Alerts).
		Dur("elapsed", summary.Elapsed).
		Msg("Replay complete")
	return summary, nil
}
