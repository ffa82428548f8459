package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/flockwatch/flockwatch/internal/patterns"
)

const sampleTextLimit = 60

// Render produces the operator-facing text block for one report:
//
//	[ALERT – <video_id>] @ <window_start>
//	one line per fired category
//	evidence section (top repeat authors and/or comment timeline)
//	technical footer with the score and the three most salient z-scores
func Render(rep Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[ALERT – %s] @ %s\n", rep.VideoID, rep.WindowStart.Format(time.RFC3339))

	for _, a := range rep.Alerts {
		fmt.Fprintf(&b, "  %s: %s\n", a, describe(a))
	}

	if len(rep.TopAuthors) > 0 {
		b.WriteString("  Top repeat authors:\n")
		for _, stat := range rep.TopAuthors {
			fmt.Fprintf(&b, "    %s  x%d  %q\n", stat.AuthorID, stat.Count, truncate(stat.Sample))
		}
	}
	if len(rep.Timeline) > 0 {
		b.WriteString("  First comments of the window:\n")
		for _, e := range rep.Timeline {
			fmt.Fprintf(&b, "    %s  %s  %q\n",
				e.PublishedAt.UTC().Format("15:04:05"), e.AuthorID, truncate(e.Text))
		}
	}

	fmt.Fprintf(&b, "  score=%.4f", rep.Score)
	if len(rep.Salient) > 0 {
		parts := make([]string, len(rep.Salient))
		for i, c := range rep.Salient {
			parts[i] = fmt.Sprintf("%s=%.2f", c.Name, c.Z)
		}
		fmt.Fprintf(&b, " | top signals: %s", strings.Join(parts, ", "))
	}
	b.WriteString("\n")

	return b.String()
}

// describe gives each category its one-line operator explanation.
func describe(a patterns.Alert) string {
	switch a {
	case patterns.AlertRhythmicPulse:
		return "inter-arrival timing is too consistent for organic traffic"
	case patterns.AlertScriptedNarrative:
		return "uniform sentiment with unusually low diversity"
	case patterns.AlertBotFlood:
		return "high volume from a small group of accounts"
	case patterns.AlertBrigade:
		return "massive spike in both volume and distinct authors"
	case patterns.AlertInteractionDensity:
		return "few accounts posting many times in rapid succession"
	default:
		return "anomalous window behavior"
	}
}

// truncate caps evidence sample texts so one pasted wall of spam cannot
// swallow the report.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= sampleTextLimit {
		return s
	}
	return string(runes[:sampleTextLimit]) + "…"
}
