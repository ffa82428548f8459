// Package watch runs the live polling loops: one goroutine per monitored
// video, each sequentially fetching new comments, persisting them, scoring
// the elapsed window against the video's baseline, and emitting alerts. All
// per-video state (baseline, newest seen comment, window cursor) is owned by
// its loop; the repository is the only shared resource.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flockwatch/flockwatch/internal/alert"
	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/net/budget"
	"github.com/flockwatch/flockwatch/internal/patterns"
	"github.com/flockwatch/flockwatch/internal/persistence"
	"github.com/flockwatch/flockwatch/internal/replay"
	"github.com/flockwatch/flockwatch/internal/sentiment"
	"github.com/flockwatch/flockwatch/internal/telemetry"
	"github.com/flockwatch/flockwatch/internal/window"
)

// DefaultPollInterval is the gap between live polling ticks.
const DefaultPollInterval = 600 * time.Second

// Source delivers comments for a video newer than latestSeenID, newest
// first. An empty latestSeenID means the full history.
type Source interface {
	Fetch(ctx context.Context, videoID, latestSeenID string) ([]persistence.Comment, error)
}

// Config sizes one video's polling loop and baseline.
type Config struct {
	PollInterval time.Duration
	MaxWindows   int
	Warmup       int
}

// Deps carries the collaborators shared by all watchers.
type Deps struct {
	Source    Source
	Sentiment sentiment.Scorer
	Repo      *persistence.Repository
	Scorer    *baseline.Scorer
	Reporter  *alert.Reporter
	Replay    *replay.Engine
	Metrics   *telemetry.Metrics
	Budget    *budget.Tracker // optional; surfaces remaining quota per tick
}

// Watcher is one video's polling loop. Not safe for concurrent use: Run owns
// all mutable state for the loop's lifetime.
type Watcher struct {
	videoID  string
	interval time.Duration

	source     Source
	sentiment  sentiment.Scorer
	comments   persistence.CommentsRepo
	windows    persistence.WindowsRepo
	aggregator *window.Aggregator
	baseline   *baseline.Baseline
	scorer     *baseline.Scorer
	reporter   *alert.Reporter
	replay     *replay.Engine
	metrics    *telemetry.Metrics
	budget     *budget.Tracker

	latestSeenID    string
	lastWindowStart time.Time

	now func() time.Time
	log zerolog.Logger
}

// NewWatcher creates the polling loop for one video. Non-positive config
// values fall back to defaults.
func NewWatcher(videoID string, cfg Config, deps Deps) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		videoID:    videoID,
		interval:   cfg.PollInterval,
		source:     deps.Source,
		sentiment:  deps.Sentiment,
		comments:   deps.Repo.Comments,
		windows:    deps.Repo.Windows,
		aggregator: window.NewAggregator(deps.Repo.Aggregates),
		baseline:   baseline.New(videoID, cfg.MaxWindows, cfg.Warmup),
		scorer:     deps.Scorer,
		reporter:   deps.Reporter,
		replay:     deps.Replay,
		metrics:    deps.Metrics,
		budget:     deps.Budget,
		now:        time.Now,
		log:        log.With().Str("video_id", videoID).Logger(),
	}
}

// VideoID returns the video this watcher polls.
func (w *Watcher) VideoID() string { return w.videoID }

// Run backfills the video's history, warms the baseline by replay, and then
// ticks until the context is cancelled. Cancellation exits cleanly after the
// in-flight tick; only a persistent storage failure terminates the loop with
// an error.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.bootstrap(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		if err := w.tick(ctx); err != nil {
			if ctx.Err() != nil {
				w.log.Info().Msg("Watcher stopped")
				return nil
			}
			w.log.Error().Err(err).Msg("Watcher terminated")
			return err
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Watcher stopped")
			return nil
		case <-timer.C:
		}
	}
}

// bootstrap fetches the full comment history, persists it with sentiment,
// and replays it to warm the baseline. Live ticking begins only afterwards.
func (w *Watcher) bootstrap(ctx context.Context) error {
	w.log.Info().Msg("Backfilling comment history")

	history, err := w.source.Fetch(ctx, w.videoID, "")
	if err != nil {
		return fmt.Errorf("failed to backfill %s: %w", w.videoID, err)
	}

	if len(history) > 0 {
		// The source pages newest-first, so the newest id leads the batch.
		w.latestSeenID = history[0].CommentID
		w.attachSentiment(ctx, history)

		inserted, err := w.comments.InsertBatch(ctx, history)
		if err != nil {
			return fmt.Errorf("failed to persist backfill for %s: %w", w.videoID, err)
		}
		w.metrics.RecordIngested(w.videoID, inserted)
		w.log.Info().
			Int("fetched", len(history)).
			Int64("inserted", inserted).
			Msg("History persisted")
	}

	summary, err := w.replay.Replay(ctx, w.videoID, w.baseline)
	if err != nil {
		return err
	}
	w.log.Info().
		Int("windows", summary.Windows).
		Int("history_depth", w.baseline.Len()).
		Bool("warm", w.baseline.Warm()).
		Msg("Baseline warmed from replay")

	w.lastWindowStart = w.now()
	return nil
}

// tick runs one poll cycle: fetch, sentiment, persist, aggregate the elapsed
// window, evaluate, classify, upsert, update. Fetch failures skip the tick
// with state untouched so the next tick retries from the same point; only
// storage failures propagate.
func (w *Watcher) tick(ctx context.Context) error {
	start := time.Now()
	status := telemetry.StatusOK
	defer func() {
		w.metrics.RecordTick(w.videoID, status, time.Since(start).Seconds())
		if w.budget != nil {
			w.metrics.SetBudgetRemaining(w.budget.Remaining())
		}
	}()

	batch, err := w.source.Fetch(ctx, w.videoID, w.latestSeenID)
	if err != nil {
		status = telemetry.StatusSkipped
		w.log.Warn().Err(err).Msg("Fetch failed, skipping tick")
		return nil
	}

	if len(batch) > 0 {
		w.latestSeenID = batch[0].CommentID
		w.attachSentiment(ctx, batch)

		inserted, err := w.comments.InsertBatch(ctx, batch)
		if err != nil {
			status = telemetry.StatusError
			return fmt.Errorf("failed to persist batch for %s: %w", w.videoID, err)
		}
		w.metrics.RecordIngested(w.videoID, inserted)
	}

	now := w.now()
	m, err := w.aggregator.Aggregate(ctx, w.videoID, w.lastWindowStart, now)
	if err != nil {
		status = telemetry.StatusError
		return err
	}

	if m.TotalComments > 0 {
		if err := w.evaluateWindow(ctx, m); err != nil {
			status = telemetry.StatusError
			return err
		}
	}

	w.lastWindowStart = now
	return nil
}

// evaluateWindow scores the window against history that does not yet contain
// it, persists the record, and only then folds it into history. Windows seen
// while the baseline is still warming are persisted without a score but are
// real observed traffic, so they still extend history.
func (w *Watcher) evaluateWindow(ctx context.Context, m persistence.WindowMetrics) error {
	z, ok := w.baseline.Evaluate(m)

	var alerts []patterns.Alert
	if ok {
		score := w.scorer.Score(z)
		m.CoordinationScore = &score
		alerts = patterns.Classify(z, m)
		w.metrics.RecordScore(w.videoID, score)
	}

	if err := w.windows.Upsert(ctx, m); err != nil {
		return fmt.Errorf("failed to upsert window for %s: %w", w.videoID, err)
	}
	w.baseline.Update(m)

	if len(alerts) > 0 {
		categories := make([]string, len(alerts))
		for i, a := range alerts {
			categories[i] = string(a)
		}
		w.metrics.RecordAlerts(w.videoID, categories)
		w.reporter.Report(ctx, m, z, *m.CoordinationScore, alerts)
	}
	return nil
}

// attachSentiment scores the batch and attaches a scalar to every comment.
// A failed inference run degrades to neutral 0.0 for the whole batch rather
// than aborting the tick.
func (w *Watcher) attachSentiment(ctx context.Context, batch []persistence.Comment) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	scores, err := w.sentiment.Score(ctx, texts)
	if err != nil || len(scores) != len(batch) {
		w.log.Warn().Err(err).Int("comments", len(batch)).
			Msg("Sentiment scoring failed, recording neutral")
		scores = make([]float64, len(batch))
	}

	for i := range batch {
		s := scores[i]
		batch[i].Sentiment = &s
	}
}
