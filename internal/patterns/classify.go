// Package patterns maps a window's robust z-scores and raw metrics onto the
// categorical alerts of coordinated or automated activity. Classification is
// pure; evidence gathering and rendering live in the alert package.
package patterns

import (
	"math"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/persistence"
)

// Alert is a categorical anomaly tag for one window.
type Alert string

const (
	// AlertRhythmicPulse — inter-arrival variance far below the video's
	// norm; timing too consistent for organic traffic.
	AlertRhythmicPulse Alert = "Rhythmic Pulse"

	// AlertScriptedNarrative — strongly shifted sentiment with collapsed
	// sentiment dispersion; many voices saying the same thing.
	AlertScriptedNarrative Alert = "Scripted Narrative"

	// AlertBotFlood — comment volume spikes while distinct authors do not.
	AlertBotFlood Alert = "Bot Flood"

	// AlertBrigade — volume and distinct authors spike together; either a
	// brigade or a genuine viral moment.
	AlertBrigade Alert = "Brigade / Organic Spike"

	// AlertInteractionDensity — few accounts producing an outsized share
	// of the window's comments.
	AlertInteractionDensity Alert = "Interaction Density"
)

// minVolume is the guard below which window z-scores are statistically
// unreliable; such windows never alert.
const minVolume = 5

// Classification thresholds on the robust z-scores.
const (
	rhythmicGapVarZ       = -1.5
	scriptedSentimentZ    = 2.0
	scriptedSentVarZ      = -1.0
	floodCountZ           = 2.0
	floodAuthorZ          = 1.0
	brigadeCountZ         = 3.0
	brigadeAuthorZ        = 3.0
	densityConcentrationZ = 2.5
)

// EvidenceKind selects the forensic query rendered with an alert.
type EvidenceKind int

const (
	// EvidenceTimeline shows the chronologically first comments of the
	// window.
	EvidenceTimeline EvidenceKind = iota

	// EvidenceTopAuthors shows the window's most frequent authors with
	// counts and sample texts.
	EvidenceTopAuthors
)

// Evidence returns the forensic query kind for the alert category.
func (a Alert) Evidence() EvidenceKind {
	if a == AlertInteractionDensity {
		return EvidenceTopAuthors
	}
	return EvidenceTimeline
}

// Classify returns every alert category the window matches. The predicates
// are independent; any subset may fire.
func Classify(z baseline.ZVector, m persistence.WindowMetrics) []Alert {
	if m.TotalComments < minVolume {
		return nil
	}

	var alerts []Alert
	if z.GapVar < rhythmicGapVarZ {
		alerts = append(alerts, AlertRhythmicPulse)
	}
	if math.Abs(z.Sentiment) > scriptedSentimentZ && z.SentimentVar < scriptedSentVarZ {
		alerts = append(alerts, AlertScriptedNarrative)
	}
	if z.Count > floodCountZ && z.Author < floodAuthorZ {
		alerts = append(alerts, AlertBotFlood)
	}
	if z.Count > brigadeCountZ && z.Author > brigadeAuthorZ {
		alerts = append(alerts, AlertBrigade)
	}
	if z.Concentration > densityConcentrationZ {
		alerts = append(alerts, AlertInteractionDensity)
	}
	return alerts
}
