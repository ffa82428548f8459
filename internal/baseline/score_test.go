package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_KnownComposite(t *testing.T) {
	s := NewScorer(DefaultScoreParams())

	z := ZVector{
		Concentration: 3.0,
		GapVar:        -2.0, // below the robotic threshold
		SentimentVar:  0.5,  // below the dampening floor
		Count:         1.2,
	}

	// 0.4·3.0 + 0.3·(2.0·2.0) + 0.2·0.05 + 0.1·1.2
	assert.InDelta(t, 2.53, s.Score(z), 1e-12)
}

func TestScorer_RoboticBiasOnlyBelowThreshold(t *testing.T) {
	s := NewScorer(DefaultScoreParams())

	atThreshold := s.Score(ZVector{GapVar: -1.5})
	below := s.Score(ZVector{GapVar: -1.6})

	assert.InDelta(t, 0.45, atThreshold, 1e-12, "the threshold itself takes no penalty")
	assert.InDelta(t, 0.96, below, 1e-12, "crossing the threshold doubles the contribution")
}

func TestScorer_NegativeComponentsCountByMagnitude(t *testing.T) {
	s := NewScorer(DefaultScoreParams())
	assert.Equal(t, s.Score(ZVector{Concentration: 3.0}), s.Score(ZVector{Concentration: -3.0}))
}

func TestScorer_RoundsToFourDecimals(t *testing.T) {
	s := NewScorer(DefaultScoreParams())

	// 0.1 · d(1/3) = 0.1 · (0.1 · 1/3) = 0.00333…
	got := s.Score(ZVector{Count: 1.0 / 3.0})
	assert.Equal(t, 0.0033, got)
}

func TestScorer_ZeroVectorScoresZero(t *testing.T) {
	s := NewScorer(DefaultScoreParams())
	assert.Equal(t, 0.0, s.Score(ZVector{}))
}

func TestScorer_MonotonicInEachComponent(t *testing.T) {
	s := NewScorer(DefaultScoreParams())

	steps := []float64{0, 0.5, 1.0, 1.5, 2.5, 5, 12, 20}

	prev := -1.0
	for _, v := range steps {
		got := s.Score(ZVector{Concentration: v})
		assert.GreaterOrEqual(t, got, prev, "concentration component must not decrease")
		prev = got
	}

	prev = -1.0
	for _, v := range steps {
		got := s.Score(ZVector{SentimentVar: v})
		assert.GreaterOrEqual(t, got, prev, "sentiment variance component must not decrease")
		prev = got
	}

	prev = -1.0
	for _, v := range steps {
		got := s.Score(ZVector{Count: v})
		assert.GreaterOrEqual(t, got, prev, "count component must not decrease")
		prev = got
	}

	// Gap variance is monotonic in magnitude on the non-robotic side.
	prev = -1.0
	for _, v := range steps {
		got := s.Score(ZVector{GapVar: v})
		assert.GreaterOrEqual(t, got, prev, "gap variance component must not decrease above the robotic threshold")
		prev = got
	}
}

func TestNewScorer_ZeroParamsUseDefaults(t *testing.T) {
	s := NewScorer(ScoreParams{})
	def := NewScorer(DefaultScoreParams())

	z := ZVector{Concentration: 2.0, GapVar: -3.0, SentimentVar: 1.4, Count: 0.2}
	assert.Equal(t, def.Score(z), s.Score(z))
}

func TestWeights_CustomDistribution(t *testing.T) {
	params := DefaultScoreParams()
	params.Weights = Weights{Concentration: 1.0}
	s := NewScorer(params)

	assert.InDelta(t, 2.0, s.Score(ZVector{Concentration: 2.0, Count: 5.0}), 1e-12,
		"zero-weighted components contribute nothing")
}
