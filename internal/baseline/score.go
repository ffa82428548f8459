package baseline

import (
	"math"

	"github.com/flockwatch/flockwatch/internal/stats"
)

// Weights distribute the composite score across the four signal components.
// A loaded set is expected to sum to 1.0; config validation enforces the
// tolerance.
type Weights struct {
	Concentration float64 `yaml:"concentration" json:"concentration"`
	GapVariance   float64 `yaml:"gap_variance" json:"gap_variance"`
	SentimentVar  float64 `yaml:"sentiment_var" json:"sentiment_var"`
	Count         float64 `yaml:"count" json:"count"`
}

// ScoreParams tunes the coordination score composition.
type ScoreParams struct {
	// NoiseFloor is the dampening threshold: |z| at or below it only
	// contributes a tenth of its magnitude.
	NoiseFloor float64 `yaml:"noise_floor" json:"noise_floor"`

	// RoboticThreshold marks unusually low gap variance. Timing that is
	// too consistent reads as automation, so gap_var_z below the
	// threshold has its contribution multiplied.
	RoboticThreshold         float64 `yaml:"robotic_threshold" json:"robotic_threshold"`
	RoboticPenaltyMultiplier float64 `yaml:"robotic_penalty_multiplier" json:"robotic_penalty_multiplier"`

	Weights Weights `yaml:"weights" json:"weights"`
}

// DefaultScoreParams returns the production scoring parameters.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		NoiseFloor:               1.0,
		RoboticThreshold:         -1.5,
		RoboticPenaltyMultiplier: 2.0,
		Weights: Weights{
			Concentration: 0.4,
			GapVariance:   0.3,
			SentimentVar:  0.2,
			Count:         0.1,
		},
	}
}

// Scorer converts a z-vector into the composite coordination score.
type Scorer struct {
	params ScoreParams
}

// NewScorer creates a scorer; zero-valued params fall back to defaults.
func NewScorer(params ScoreParams) *Scorer {
	def := DefaultScoreParams()
	if params.NoiseFloor == 0 {
		params.NoiseFloor = def.NoiseFloor
	}
	if params.RoboticThreshold == 0 {
		params.RoboticThreshold = def.RoboticThreshold
	}
	if params.RoboticPenaltyMultiplier == 0 {
		params.RoboticPenaltyMultiplier = def.RoboticPenaltyMultiplier
	}
	if params.Weights == (Weights{}) {
		params.Weights = def.Weights
	}
	return &Scorer{params: params}
}

// Score computes the weighted sum of dampened |z| components, with the
// robotic bias applied to gap variance, rounded to 4 decimals. The result is
// non-negative and, through the z clamp, bounded in practice.
func (s *Scorer) Score(z ZVector) float64 {
	d := func(v float64) float64 { return stats.Dampen(v, s.params.NoiseFloor) }

	g := d(z.GapVar)
	if z.GapVar < s.params.RoboticThreshold {
		g *= s.params.RoboticPenaltyMultiplier
	}

	score := s.params.Weights.Concentration*d(z.Concentration) +
		s.params.Weights.GapVariance*g +
		s.params.Weights.SentimentVar*d(z.SentimentVar) +
		s.params.Weights.Count*d(z.Count)

	return math.Round(score*10000) / 10000
}
