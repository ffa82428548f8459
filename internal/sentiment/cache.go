package sentiment

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const cacheKeyPrefix = "flockwatch:sentiment:"

// CacheConfig configures the redis score cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr: "localhost:6379",
		TTL:  7 * 24 * time.Hour,
	}
}

// NewRedisClient builds the redis client used by the score cache.
func NewRedisClient(config CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// CachedScorer decorates a Scorer with a redis cache keyed by text digest.
// Comment text repeats heavily (copy-paste spam above all), so hit rates are
// high exactly when scoring volume spikes. Cache failures degrade to misses,
// never to pipeline errors.
type CachedScorer struct {
	inner Scorer
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedScorer wraps inner with the redis score cache.
func NewCachedScorer(inner Scorer, client *redis.Client, ttl time.Duration) *CachedScorer {
	if ttl <= 0 {
		ttl = DefaultCacheConfig().TTL
	}
	return &CachedScorer{
		inner: inner,
		redis: client,
		ttl:   ttl,
	}
}

// Score returns cached scalars where available and pays inference only for
// the misses. Blank texts score 0.0 without touching the cache.
func (c *CachedScorer) Score(ctx context.Context, texts []string) ([]float64, error) {
	results := make([]float64, len(texts))

	keys := make([]string, 0, len(texts))
	keyIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		keys = append(keys, cacheKey(text))
		keyIdx = append(keyIdx, i)
	}
	if len(keys) == 0 {
		return results, nil
	}

	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		log.Warn().Err(err).Msg("Sentiment cache lookup failed, scoring everything")
		cached = nil
	}

	var missIdx []int
	var missTexts []string
	for j, i := range keyIdx {
		if cached != nil {
			if raw, ok := cached[j].(string); ok {
				if score, perr := strconv.ParseFloat(raw, 64); perr == nil {
					results[i] = score
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	scored, err := c.inner.Score(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, score := range scored {
		i := missIdx[j]
		results[i] = score

		raw := strconv.FormatFloat(score, 'f', -1, 64)
		if serr := c.redis.Set(ctx, cacheKey(texts[i]), raw, c.ttl).Err(); serr != nil {
			log.Warn().Err(serr).Msg("Failed to cache sentiment score")
		}
	}

	return results, nil
}

func cacheKey(text string) string {
	sum := sha1.Sum([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
