// Package window derives per-window behavioral metrics from the comment log:
// volume, authorship, text length, sentiment moments, and inter-arrival
// timing. All fields are computed in a single pass over chronologically
// ordered comment samples streamed from the persistence layer.
package window

import (
	"context"
	"fmt"
	"time"

	"github.com/flockwatch/flockwatch/internal/persistence"
)

// Aggregator computes WindowMetrics records from streamed comment samples.
type Aggregator struct {
	samples persistence.AggregatesRepo
}

// NewAggregator creates an aggregator over the given sample source.
func NewAggregator(samples persistence.AggregatesRepo) *Aggregator {
	return &Aggregator{samples: samples}
}

// BucketStart maps an instant onto its fixed-window start:
// floor(epoch(t)/period)*period, rendered in UTC.
func BucketStart(t time.Time, period time.Duration) time.Time {
	p := int64(period / time.Second)
	if p <= 0 {
		p = 1
	}
	sec := t.Unix() / p * p
	return time.Unix(sec, 0).UTC()
}

// Aggregate computes the metric record for one video over
// [windowStart, windowEnd], both bounds inclusive. An empty range still
// yields a record, with every derived field at zero.
func (ag *Aggregator) Aggregate(ctx context.Context, videoID string, windowStart, windowEnd time.Time) (persistence.WindowMetrics, error) {
	acc := newAccumulator()
	tr := persistence.TimeRange{From: windowStart, To: windowEnd}

	err := ag.samples.IterSamples(ctx, videoID, tr, func(s persistence.CommentSample) error {
		acc.add(s)
		return nil
	})
	if err != nil {
		return persistence.WindowMetrics{}, fmt.Errorf("failed to aggregate window for %s: %w", videoID, err)
	}

	return acc.metrics(videoID, windowStart.UTC().Truncate(time.Second)), nil
}

// AggregateAll streams one metric record per occupied bucket of the video's
// full history, ascending by window start. Buckets are
// floor(epoch/period)*period aligned; gaps are computed per bucket. emit is
// called as each bucket completes; a non-nil error from emit stops the sweep.
func (ag *Aggregator) AggregateAll(ctx context.Context, videoID string, period time.Duration, emit func(persistence.WindowMetrics) error) error {
	var (
		acc     *accumulator
		current time.Time
	)

	err := ag.samples.IterSamples(ctx, videoID, persistence.TimeRange{}, func(s persistence.CommentSample) error {
		bucket := BucketStart(s.PublishedAt, period)
		if acc == nil || !bucket.Equal(current) {
			if acc != nil {
				if err := emit(acc.metrics(videoID, current)); err != nil {
					return err
				}
			}
			acc = newAccumulator()
			current = bucket
		}
		acc.add(s)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to aggregate history for %s: %w", videoID, err)
	}

	if acc != nil {
		return emit(acc.metrics(videoID, current))
	}
	return nil
}

// accumulator folds comment samples into window metric sums. Samples must
// arrive in chronological order for the gap terms to be meaningful.
type accumulator struct {
	total   int64
	authors map[string]struct{}
	lenSum  float64

	sentN     int64
	sentSum   float64
	sentSqSum float64

	gapN     int64
	gapSum   float64
	gapSqSum float64
	prev     time.Time
	hasPrev  bool
}

func newAccumulator() *accumulator {
	return &accumulator{authors: make(map[string]struct{})}
}

func (a *accumulator) add(s persistence.CommentSample) {
	a.total++
	a.authors[s.AuthorID] = struct{}{}
	a.lenSum += float64(s.TextChars)

	// Unsent sentiment (pre-scoring rows) is excluded from the sentiment
	// moments but still counts toward volume and timing.
	if s.Sentiment != nil {
		a.sentN++
		a.sentSum += *s.Sentiment
		a.sentSqSum += *s.Sentiment * *s.Sentiment
	}

	// The first comment of a window yields no gap.
	if a.hasPrev {
		gap := s.PublishedAt.Sub(a.prev).Seconds()
		a.gapN++
		a.gapSum += gap
		a.gapSqSum += gap * gap
	}
	a.prev = s.PublishedAt
	a.hasPrev = true
}

func (a *accumulator) metrics(videoID string, windowStart time.Time) persistence.WindowMetrics {
	m := persistence.WindowMetrics{
		VideoID:     videoID,
		WindowStart: windowStart,
	}
	if a.total == 0 {
		return m
	}

	m.TotalComments = a.total
	m.UniqueAuthors = int64(len(a.authors))
	m.AvgLength = a.lenSum / float64(a.total)

	if a.sentN > 0 {
		mean := a.sentSum / float64(a.sentN)
		m.AvgSentiment = mean
		m.SentimentVariance = clampNonNegative(a.sentSqSum/float64(a.sentN) - mean*mean)
	}
	if a.gapN > 0 {
		mean := a.gapSum / float64(a.gapN)
		m.AvgGap = mean
		m.GapVariance = clampNonNegative(a.gapSqSum/float64(a.gapN) - mean*mean)
	}
	return m
}

// clampNonNegative absorbs the floating-point underflow of the population
// variance formula E[X²] − (E[X])².
func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
