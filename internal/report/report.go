// Package report builds the offline forensic views served by the report
// command: the score distribution and above-percentile windows for a video,
// per-author behavioral summaries, and per-minute burst detection. It only
// reads persisted state; nothing here fetches or scores live traffic.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/patterns"
	"github.com/flockwatch/flockwatch/internal/persistence"
	"github.com/flockwatch/flockwatch/internal/stats"
)

// minReliableScores is the sample size below which a percentile threshold is
// marked low-confidence in the rendered report.
const minReliableScores = 20

// Analyzer answers offline report queries over the repositories.
type Analyzer struct {
	repo       *persistence.Repository
	maxWindows int
	warmup     int
}

// NewAnalyzer creates an analyzer whose alert recomputation uses the given
// baseline sizing, which should match the daemon's configuration.
func NewAnalyzer(repo *persistence.Repository, maxWindows, warmup int) *Analyzer {
	return &Analyzer{repo: repo, maxWindows: maxWindows, warmup: warmup}
}

// ScoreDistribution summarizes the coordination scores of one video.
type ScoreDistribution struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	Max   float64 `json:"max"`
}

// AnomalousWindow is one window at or above the percentile threshold, with
// its z-scores and alert categories recomputed from the stored metrics.
type AnomalousWindow struct {
	Window persistence.WindowMetrics `json:"window"`
	Z      baseline.ZVector          `json:"z"`
	Alerts []patterns.Alert          `json:"alerts"`
}

// AnomalyReport is the full offline anomaly analysis for one video.
type AnomalyReport struct {
	VideoID       string            `json:"video_id"`
	Percentile    float64           `json:"percentile"`
	Threshold     float64           `json:"threshold"`
	Distribution  ScoreDistribution `json:"distribution"`
	Anomalies     []AnomalousWindow `json:"anomalies"`
	TotalWindows  int               `json:"total_windows"`
	LowConfidence bool              `json:"low_confidence"`
}

// Anomalies computes the score distribution for the video and returns the
// scored windows at or above the requested percentile. Alert categories are
// recomputed by replaying the stored windows chronologically through a fresh
// baseline, so each window is judged against the history that preceded it.
func (a *Analyzer) Anomalies(ctx context.Context, videoID string, percentile float64) (*AnomalyReport, error) {
	if percentile <= 0 || percentile >= 100 {
		percentile = 95
	}

	all, err := a.repo.Windows.ListByVideo(ctx, videoID, persistence.TimeRange{}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s: %w", videoID, err)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].WindowStart.Before(all[j].WindowStart)
	})

	rep := &AnomalyReport{
		VideoID:      videoID,
		Percentile:   percentile,
		TotalWindows: len(all),
	}

	var scores []float64
	for _, w := range all {
		if w.CoordinationScore != nil {
			scores = append(scores, *w.CoordinationScore)
		}
	}
	if len(scores) == 0 {
		return rep, nil
	}

	rep.Distribution = ScoreDistribution{
		Count: len(scores),
		Mean:  mean(scores),
		P50:   stats.Percentile(scores, 50),
		Max:   stats.Percentile(scores, 100),
	}
	rep.Threshold = stats.Percentile(scores, percentile)
	rep.LowConfidence = len(scores) < minReliableScores

	b := baseline.New(videoID, a.maxWindows, a.warmup)
	for _, w := range all {
		z, ok := b.Evaluate(w)
		if ok && w.CoordinationScore != nil && *w.CoordinationScore >= rep.Threshold {
			rep.Anomalies = append(rep.Anomalies, AnomalousWindow{
				Window: w,
				Z:      z,
				Alerts: patterns.Classify(z, w),
			})
		}
		b.Update(w)
	}

	return rep, nil
}

// Authors returns the per-author behavioral summary for a video.
func (a *Analyzer) Authors(ctx context.Context, videoID string, limit int) ([]persistence.AuthorActivity, error) {
	return a.repo.Comments.AuthorSummary(ctx, videoID, limit)
}

// Bursts returns per-author per-minute comment counts of at least
// minPerMinute for a video.
func (a *Analyzer) Bursts(ctx context.Context, videoID string, minPerMinute int) ([]persistence.Burst, error) {
	return a.repo.Comments.Bursts(ctx, videoID, minPerMinute)
}

// RenderAnomalies renders the anomaly report for the terminal.
func RenderAnomalies(rep *AnomalyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Anomaly report for %s (%s windows)\n\n",
		rep.VideoID, humanize.Comma(int64(rep.TotalWindows)))

	if rep.Distribution.Count == 0 {
		b.WriteString("No scored windows yet. Run watch or replay first.\n")
		return b.String()
	}
	if rep.LowConfidence {
		fmt.Fprintf(&b, "Note: only %d scored windows, percentile threshold is unreliable below %d.\n\n",
			rep.Distribution.Count, minReliableScores)
	}

	dist := table.NewWriter()
	dist.SetStyle(table.StyleLight)
	dist.AppendHeader(table.Row{"Scored", "Mean", "P50", fmt.Sprintf("P%g", rep.Percentile), "Max"})
	dist.AppendRow(table.Row{
		humanize.Comma(int64(rep.Distribution.Count)),
		fmt.Sprintf("%.4f", rep.Distribution.Mean),
		fmt.Sprintf("%.4f", rep.Distribution.P50),
		fmt.Sprintf("%.4f", rep.Threshold),
		fmt.Sprintf("%.4f", rep.Distribution.Max),
	})
	b.WriteString(dist.Render())
	b.WriteString("\n\n")

	if len(rep.Anomalies) == 0 {
		fmt.Fprintf(&b, "No windows at or above the P%g threshold.\n", rep.Percentile)
		return b.String()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Window", "Score", "Comments", "Authors", "Alerts", "Top signals"})
	for _, a := range rep.Anomalies {
		tbl.AppendRow(table.Row{
			a.Window.WindowStart.Format(time.RFC3339),
			fmt.Sprintf("%.4f", deref(a.Window.CoordinationScore)),
			humanize.Comma(a.Window.TotalComments),
			humanize.Comma(a.Window.UniqueAuthors),
			joinAlerts(a.Alerts),
			topSignals(a.Z),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d anomalous windows", len(rep.Anomalies))})
	b.WriteString(tbl.Render())
	b.WriteString("\n")

	return b.String()
}

// RenderAuthors renders the per-author summary for the terminal.
func RenderAuthors(videoID string, authors []persistence.AuthorActivity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Author summary for %s\n\n", videoID)

	if len(authors) == 0 {
		b.WriteString("No comments stored for this video.\n")
		return b.String()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Author", "Comments", "First seen", "Last active", "Sample"})
	for _, a := range authors {
		tbl.AppendRow(table.Row{
			a.AuthorID,
			humanize.Comma(a.Count),
			a.FirstSeen.Format("2006-01-02 15:04"),
			humanize.Time(a.LastSeen),
			truncateSample(a.Sample),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d authors", len(authors))})
	b.WriteString(tbl.Render())
	b.WriteString("\n")

	return b.String()
}

// RenderBursts renders the burst detection table for the terminal.
func RenderBursts(videoID string, minPerMinute int, bursts []persistence.Burst) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bursts for %s (>= %d comments per author per minute)\n\n", videoID, minPerMinute)

	if len(bursts) == 0 {
		b.WriteString("No bursts found.\n")
		return b.String()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Author", "Minute", "Comments"})
	for _, burst := range bursts {
		tbl.AppendRow(table.Row{
			burst.AuthorID,
			burst.MinuteStart.Format("2006-01-02 15:04"),
			humanize.Comma(burst.Count),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d bursts", len(bursts))})
	b.WriteString(tbl.Render())
	b.WriteString("\n")

	return b.String()
}

func joinAlerts(alerts []patterns.Alert) string {
	if len(alerts) == 0 {
		return "-"
	}
	names := make([]string, len(alerts))
	for i, a := range alerts {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func topSignals(z baseline.ZVector) string {
	parts := make([]string, 0, 3)
	for _, c := range z.Salient(3) {
		parts = append(parts, fmt.Sprintf("%s=%.2f", c.Name, c.Z))
	}
	return strings.Join(parts, " ")
}

func truncateSample(s string) string {
	const max = 40
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
