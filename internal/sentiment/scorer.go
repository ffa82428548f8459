// Package sentiment scores comment text on a [-1, +1] scale by calling an
// external classifier service in batches. A redis-backed decorator keeps
// replays and refetches from paying for the same inference twice.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBatchSize = 32

// Scorer scores a slice of texts, one scalar in [-1, +1] per input.
type Scorer interface {
	Score(ctx context.Context, texts []string) ([]float64, error)
}

// Config configures the sentiment service client.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	BatchSize      int           `yaml:"batch_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns the sentiment client defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      defaultBatchSize,
		RequestTimeout: 15 * time.Second,
	}
}

// Client calls the sentiment classifier service.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a sentiment client. httpClient normally carries the
// guard stack from internal/net/client; nil gets a plain client with the
// configured timeout.
func NewClient(config Config, httpClient *http.Client) *Client {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}

	return &Client{config: config, http: httpClient}
}

type scoreRequest struct {
	Texts []string `json:"texts"`
}

type scoreResult struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type scoreResponse struct {
	Results []scoreResult `json:"results"`
}

// Score classifies texts in batches. Blank texts are scored 0.0 locally and
// never sent. Results line up with the input order.
func (c *Client) Score(ctx context.Context, texts []string) ([]float64, error) {
	results := make([]float64, len(texts))

	// Only non-blank texts go over the wire.
	indices := make([]int, 0, len(texts))
	outbound := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		indices = append(indices, i)
		outbound = append(outbound, text)
	}

	for start := 0; start < len(outbound); start += c.config.BatchSize {
		end := start + c.config.BatchSize
		if end > len(outbound) {
			end = len(outbound)
		}

		scores, err := c.scoreBatch(ctx, outbound[start:end])
		if err != nil {
			return nil, err
		}
		for j, s := range scores {
			results[indices[start+j]] = s
		}
	}

	return results, nil
}

func (c *Client) scoreBatch(ctx context.Context, texts []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sentiment service HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode sentiment response: %w", err)
	}

	if len(parsed.Results) != len(texts) {
		return nil, fmt.Errorf("sentiment service returned %d results for %d texts",
			len(parsed.Results), len(texts))
	}

	scores := make([]float64, len(parsed.Results))
	for i, r := range parsed.Results {
		scores[i] = scalarFromResult(r.Label, r.Score)
	}

	log.Debug().
		Int("texts", len(texts)).
		Dur("duration", time.Since(start)).
		Msg("Sentiment batch scored")

	return scores, nil
}

// scalarFromResult maps the classifier's (label, confidence) pair onto
// [-1, +1]: a confident POSITIVE approaches +1, a confident NEGATIVE
// approaches -1, an unsure classifier lands near 0.
func scalarFromResult(label string, score float64) float64 {
	val := score
	if !strings.EqualFold(label, "POSITIVE") {
		val = 1 - score
	}
	return (val - 0.5) * 2
}
