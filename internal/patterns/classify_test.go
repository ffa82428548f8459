package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/persistence"
)

func metricsOf(total, authors int64, avgSent, sentVar, avgGap, gapVar float64) persistence.WindowMetrics {
	return persistence.WindowMetrics{
		VideoID:           "vid-1",
		WindowStart:       time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		TotalComments:     total,
		UniqueAuthors:     authors,
		AvgLength:         50,
		AvgSentiment:      avgSent,
		SentimentVariance: sentVar,
		AvgGap:            avgGap,
		GapVariance:       gapVar,
	}
}

func TestClassify_VolumeGuardSuppressesAllAlerts(t *testing.T) {
	wild := baseline.ZVector{
		Count:         20,
		Author:        -20,
		Sentiment:     20,
		Concentration: 20,
		SentimentVar:  -20,
		GapVar:        -20,
	}

	alerts := Classify(wild, metricsOf(4, 1, 0.9, 0, 1, 0))
	assert.Empty(t, alerts, "fewer than five comments must never alert")

	alerts = Classify(wild, metricsOf(5, 1, 0.9, 0, 1, 0))
	assert.NotEmpty(t, alerts, "five comments clear the guard")
}

func TestClassify_PredicateBoundaries(t *testing.T) {
	m := metricsOf(50, 10, 0, 0.05, 30, 400)

	assert.Empty(t, Classify(baseline.ZVector{GapVar: -1.5}, m), "rhythmic threshold is strict")
	assert.Contains(t, Classify(baseline.ZVector{GapVar: -1.51}, m), AlertRhythmicPulse)

	assert.Empty(t, Classify(baseline.ZVector{Sentiment: 2.5, SentimentVar: -0.5}, m),
		"scripted narrative needs collapsed dispersion, not just a shift")
	assert.Contains(t, Classify(baseline.ZVector{Sentiment: -2.5, SentimentVar: -1.5}, m),
		AlertScriptedNarrative, "the sentiment shift counts by magnitude")

	assert.Empty(t, Classify(baseline.ZVector{Count: 2.0, Author: 0.5}, m), "flood count threshold is strict")
	assert.Empty(t, Classify(baseline.ZVector{Count: 2.5, Author: 1.0}, m), "flood author ceiling is strict")
	assert.Contains(t, Classify(baseline.ZVector{Count: 2.5, Author: 0.99}, m), AlertBotFlood)

	brigade := Classify(baseline.ZVector{Count: 3.5, Author: 3.5}, m)
	assert.Contains(t, brigade, AlertBrigade)
	assert.NotContains(t, brigade, AlertBotFlood, "spiking authors rule out a flood")

	assert.Empty(t, Classify(baseline.ZVector{Concentration: 2.5}, m), "density threshold is strict")
	assert.Contains(t, Classify(baseline.ZVector{Concentration: 2.51}, m), AlertInteractionDensity)
}

func TestClassify_RoboticCadence(t *testing.T) {
	b := baseline.New("vid-1", 20, 10)

	// Organic traffic: bursty inter-arrival timing, gap variance scattered
	// around ~900 (exponential-like arrivals at a 30s mean).
	gapVars := []float64{
		850, 1000, 920, 880, 800, 960, 1100, 820, 940, 1060,
		900, 980, 840, 1040, 860, 1020, 910, 950, 1080, 930,
	}
	for _, gv := range gapVars {
		b.Update(metricsOf(40, 35, 0.1, 0.05, 30, gv))
	}

	// Scripted cadence: every gap exactly 30s, variance zero.
	robotic := metricsOf(40, 35, 0.1, 0.05, 30, 0)
	z, ok := b.Evaluate(robotic)
	require.True(t, ok)

	assert.Less(t, z.GapVar, -1.5, "collapsed gap variance must read as robotic")
	assert.Equal(t, []Alert{AlertRhythmicPulse}, Classify(z, robotic))
}

func TestClassify_BotFlood(t *testing.T) {
	b := baseline.New("vid-1", 20, 10)
	for i := 0; i < 15; i++ {
		b.Update(metricsOf(20, 18, 0.1, 0.05, 30, 400))
	}

	flood := metricsOf(200, 19, 0.1, 0.05, 30, 400)
	z, ok := b.Evaluate(flood)
	require.True(t, ok)

	assert.Greater(t, z.Count, 2.0)
	assert.Less(t, z.Author, 1.0)
	assert.Contains(t, Classify(z, flood), AlertBotFlood)
}

func TestClassify_ScriptedNarrative(t *testing.T) {
	b := baseline.New("vid-1", 20, 10)

	// Mildly mixed opinions: sentiment means spread across ±0.2 with
	// ordinary dispersion inside each window.
	sentiments := []float64{-0.2, -0.15, -0.1, -0.05, -0.02, 0, 0.02, 0.05, 0.1, 0.15, 0.18, 0.2}
	sentVars := []float64{0.04, 0.045, 0.05, 0.055, 0.058, 0.06, 0.06, 0.062, 0.065, 0.07, 0.075, 0.08}
	for i := range sentiments {
		b.Update(metricsOf(30, 25, sentiments[i], sentVars[i], 30, 400))
	}

	// Every comment glowing and identical in tone.
	scripted := metricsOf(30, 25, 0.9, 0, 30, 400)
	z, ok := b.Evaluate(scripted)
	require.True(t, ok)

	assert.Greater(t, z.Sentiment, 2.0)
	assert.Less(t, z.SentimentVar, -1.0)
	assert.Equal(t, []Alert{AlertScriptedNarrative}, Classify(z, scripted))
}

func TestClassify_InteractionDensity(t *testing.T) {
	b := baseline.New("vid-1", 20, 10)
	for i := 0; i < 12; i++ {
		b.Update(metricsOf(21, 20, 0.1, 0.05, 30, 400))
	}

	// Fifty comments from five accounts: concentration 10 against ~1.05.
	dense := metricsOf(50, 5, 0.1, 0.05, 30, 400)
	z, ok := b.Evaluate(dense)
	require.True(t, ok)

	assert.Greater(t, z.Concentration, 2.5)
	assert.Contains(t, Classify(z, dense), AlertInteractionDensity)
}

func TestAlert_EvidenceRouting(t *testing.T) {
	assert.Equal(t, EvidenceTopAuthors, AlertInteractionDensity.Evidence())

	for _, a := range []Alert{AlertRhythmicPulse, AlertScriptedNarrative, AlertBotFlood, AlertBrigade} {
		assert.Equal(t, EvidenceTimeline, a.Evidence(), string(a))
	}
}
