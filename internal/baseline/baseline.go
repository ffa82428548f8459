// Package baseline maintains each video's rolling behavioral history and
// turns candidate window metrics into robust z-scores and a composite
// coordination score. Every video owns exactly one Baseline for the process
// lifetime; history is rebuilt by replay on startup, never persisted.
package baseline

import (
	"math"
	"sort"

	"github.com/flockwatch/flockwatch/internal/persistence"
	"github.com/flockwatch/flockwatch/internal/stats"
)

// Default history sizing.
const (
	DefaultMaxWindows = 20
	DefaultWarmup     = 10
)

// Per-series noise floors. They put a lower bound on the MAD-derived scale so
// near-constant series cannot blow up the z-scores.
const (
	floorCounts        = 2.0
	floorAuthors       = 2.0
	floorLengths       = 10.0
	floorSentiments    = 0.1
	floorConcentration = 0.15
	floorSentimentVar  = 0.05
	floorAvgGaps       = 5.0
	floorGapVars       = 10.0
)

// ZVector carries the robust z-scores of one window against its video's
// rolling history.
type ZVector struct {
	Count         float64 `json:"count_z"`
	Author        float64 `json:"author_z"`
	Length        float64 `json:"length_z"`
	Sentiment     float64 `json:"sentiment_z"`
	Concentration float64 `json:"concentration_z"`
	SentimentVar  float64 `json:"sentiment_var_z"`
	Gap           float64 `json:"gap_z"`
	GapVar        float64 `json:"gap_var_z"`
}

// Component pairs one z-score with its series name for report rendering.
type Component struct {
	Name string  `json:"name"`
	Z    float64 `json:"z"`
}

// Components returns all eight z-scores in canonical order.
func (z ZVector) Components() []Component {
	return []Component{
		{Name: "count_z", Z: z.Count},
		{Name: "author_z", Z: z.Author},
		{Name: "length_z", Z: z.Length},
		{Name: "sentiment_z", Z: z.Sentiment},
		{Name: "concentration_z", Z: z.Concentration},
		{Name: "sentiment_var_z", Z: z.SentimentVar},
		{Name: "gap_z", Z: z.Gap},
		{Name: "gap_var_z", Z: z.GapVar},
	}
}

// Salient returns the n components with the largest |z|, descending. Ties
// keep canonical order.
func (z ZVector) Salient(n int) []Component {
	cs := z.Components()
	sort.SliceStable(cs, func(i, j int) bool {
		return math.Abs(cs[i].Z) > math.Abs(cs[j].Z)
	})
	if n > len(cs) {
		n = len(cs)
	}
	return cs[:n]
}

// Baseline is one video's bounded rolling history: eight parallel series over
// the same window sequence. Not safe for concurrent use; each video's
// watcher owns its baseline exclusively.
type Baseline struct {
	videoID    string
	warmup     int
	counts     *series
	authors    *series
	lengths    *series
	sentiments *series
	concs      *series
	sentVars   *series
	gaps       *series
	gapVars    *series
}

// New creates an empty baseline for a video. Non-positive sizing falls back
// to the defaults (capacity 20, warmup 10).
func New(videoID string, maxWindows, warmup int) *Baseline {
	if maxWindows <= 0 {
		maxWindows = DefaultMaxWindows
	}
	if warmup <= 0 {
		warmup = DefaultWarmup
	}
	return &Baseline{
		videoID:    videoID,
		warmup:     warmup,
		counts:     newSeries(maxWindows),
		authors:    newSeries(maxWindows),
		lengths:    newSeries(maxWindows),
		sentiments: newSeries(maxWindows),
		concs:      newSeries(maxWindows),
		sentVars:   newSeries(maxWindows),
		gaps:       newSeries(maxWindows),
		gapVars:    newSeries(maxWindows),
	}
}

// VideoID returns the video this baseline belongs to.
func (b *Baseline) VideoID() string { return b.videoID }

// Len returns the number of windows currently in history.
func (b *Baseline) Len() int { return b.counts.len() }

// Warm reports whether history is deep enough to evaluate candidates.
func (b *Baseline) Warm() bool { return b.Len() >= b.warmup }

// Update appends the record's derived values to all eight series, evicting
// the oldest window once capacity is reached.
func (b *Baseline) Update(m persistence.WindowMetrics) {
	b.counts.push(float64(m.TotalComments))
	b.authors.push(float64(m.UniqueAuthors))
	b.lengths.push(m.AvgLength)
	b.sentiments.push(m.AvgSentiment)
	b.concs.push(m.Concentration())
	b.sentVars.push(m.SentimentVariance)
	b.gaps.push(m.AvgGap)
	b.gapVars.push(m.GapVariance)
}

// Evaluate scores the candidate record against the current history. ok is
// false until the baseline is warm. Evaluate never mutates history: callers
// score a record first and Update with it afterwards, so a window is never
// judged against a history containing itself.
func (b *Baseline) Evaluate(m persistence.WindowMetrics) (ZVector, bool) {
	if !b.Warm() {
		return ZVector{}, false
	}
	z := ZVector{
		Count:         stats.RobustZ(float64(m.TotalComments), b.counts.snapshot(), floorCounts),
		Author:        stats.RobustZ(float64(m.UniqueAuthors), b.authors.snapshot(), floorAuthors),
		Length:        stats.RobustZ(m.AvgLength, b.lengths.snapshot(), floorLengths),
		Sentiment:     stats.RobustZ(m.AvgSentiment, b.sentiments.snapshot(), floorSentiments),
		Concentration: stats.RobustZ(m.Concentration(), b.concs.snapshot(), floorConcentration),
		SentimentVar:  stats.RobustZ(m.SentimentVariance, b.sentVars.snapshot(), floorSentimentVar),
		Gap:           stats.RobustZ(m.AvgGap, b.gaps.snapshot(), floorAvgGaps),
		GapVar:        stats.RobustZ(m.GapVariance, b.gapVars.snapshot(), floorGapVars),
	}
	return z, true
}

// series is a fixed-capacity ring buffer of float64 observations.
type series struct {
	buf  []float64
	head int
	n    int
}

func newSeries(capacity int) *series {
	return &series{buf: make([]float64, capacity)}
}

func (s *series) len() int { return s.n }

func (s *series) push(v float64) {
	if s.n < len(s.buf) {
		s.buf[(s.head+s.n)%len(s.buf)] = v
		s.n++
		return
	}
	s.buf[s.head] = v
	s.head = (s.head + 1) % len(s.buf)
}

// snapshot copies the series in chronological order.
func (s *series) snapshot() []float64 {
	out := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}
