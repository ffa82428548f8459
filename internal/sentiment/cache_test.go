package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	calls  [][]string
	scores map[string]float64
	err    error
}

func (s *stubScorer) Score(ctx context.Context, texts []string) ([]float64, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(texts))
	for i, text := range texts {
		out[i] = s.scores[text]
	}
	return out, nil
}

func TestCachedScorer_HitSkipsInference(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &stubScorer{}
	scorer := NewCachedScorer(inner, db, time.Hour)

	mock.ExpectMGet(cacheKey("great video")).SetVal([]interface{}{"0.8"})

	got, err := scorer.Score(context.Background(), []string{"great video"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8}, got)
	assert.Empty(t, inner.calls, "cache hit must not reach the classifier")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedScorer_MissScoresAndBackfills(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &stubScorer{scores: map[string]float64{"one": 0.5, "two": -0.25}}
	scorer := NewCachedScorer(inner, db, time.Hour)

	mock.ExpectMGet(cacheKey("one"), cacheKey("two")).SetVal([]interface{}{nil, nil})
	mock.ExpectSet(cacheKey("one"), "0.5", time.Hour).SetVal("OK")
	mock.ExpectSet(cacheKey("two"), "-0.25", time.Hour).SetVal("OK")

	got, err := scorer.Score(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.25}, got)
	require.Len(t, inner.calls, 1)
	assert.Equal(t, []string{"one", "two"}, inner.calls[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedScorer_MixedHitAndMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &stubScorer{scores: map[string]float64{"fresh": -0.4}}
	scorer := NewCachedScorer(inner, db, time.Hour)

	mock.ExpectMGet(cacheKey("cached"), cacheKey("fresh")).SetVal([]interface{}{"0.9", nil})
	mock.ExpectSet(cacheKey("fresh"), "-0.4", time.Hour).SetVal("OK")

	got, err := scorer.Score(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, -0.4}, got)
	require.Len(t, inner.calls, 1)
	assert.Equal(t, []string{"fresh"}, inner.calls[0], "only misses reach the classifier")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedScorer_BlankTextsSkipCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &stubScorer{}
	scorer := NewCachedScorer(inner, db, time.Hour)

	got, err := scorer.Score(context.Background(), []string{"", "   "})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, got)
	assert.Empty(t, inner.calls)
	assert.NoError(t, mock.ExpectationsWereMet(), "no redis traffic for blank texts")
}

func TestCachedScorer_RedisFailureDegradesToMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	inner := &stubScorer{scores: map[string]float64{"text": 0.6}}
	scorer := NewCachedScorer(inner, db, time.Hour)

	mock.ExpectMGet(cacheKey("text")).SetErr(errors.New("connection refused"))
	mock.ExpectSet(cacheKey("text"), "0.6", time.Hour).SetErr(errors.New("connection refused"))

	got, err := scorer.Score(context.Background(), []string{"text"})
	require.NoError(t, err, "cache trouble must never fail scoring")
	assert.Equal(t, []float64{0.6}, got)
	require.Len(t, inner.calls, 1)
}

func TestCachedScorer_ClassifierErrorPropagates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	boom := errors.New("model down")
	inner := &stubScorer{err: boom}
	scorer := NewCachedScorer(inner, db, time.Hour)

	mock.ExpectMGet(cacheKey("text")).SetVal([]interface{}{nil})

	_, err := scorer.Score(context.Background(), []string{"text"})
	require.ErrorIs(t, err, boom)
}

func TestCacheKey_StableDigest(t *testing.T) {
	assert.Equal(t, cacheKey("same text"), cacheKey("same text"))
	assert.NotEqual(t, cacheKey("one"), cacheKey("two"))
	assert.Contains(t, cacheKey("x"), "flockwatch:sentiment:")
}
