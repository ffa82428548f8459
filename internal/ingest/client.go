// Package ingest fetches comments from the upstream video comment API.
// The API pages newest-first, so incremental polls walk pages only until
// they meet the newest comment already stored.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flockwatch/flockwatch/internal/persistence"
	"github.com/flockwatch/flockwatch/internal/telemetry"
)

const maxPageSize = 100

// Config configures the comment source client.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key" env:"FLOCKWATCH_API_KEY"`
	PageSize       int           `yaml:"page_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns the source client defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:       maxPageSize,
		RequestTimeout: 10 * time.Second,
	}
}

// Client pulls comment pages from the source API.
type Client struct {
	config  Config
	http    *http.Client
	metrics *telemetry.Metrics
}

// NewClient creates a source client. httpClient normally carries the guard
// stack from internal/net/client; nil gets a plain client with the configured
// timeout. metrics may be nil.
func NewClient(config Config, httpClient *http.Client, metrics *telemetry.Metrics) *Client {
	if config.PageSize <= 0 || config.PageSize > maxPageSize {
		config.PageSize = maxPageSize
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}

	return &Client{
		config:  config,
		http:    httpClient,
		metrics: metrics,
	}
}

type pageItem struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	Text        string `json:"text"`
	PublishedAt string `json:"published_at"`
}

type pageResponse struct {
	Items         []pageItem `json:"items"`
	NextPageToken string     `json:"next_page_token"`
}

// FetchAll retrieves every comment for a video. Used for the startup
// backfill before incremental polling takes over.
func (c *Client) FetchAll(ctx context.Context, videoID string) ([]persistence.Comment, error) {
	return c.Fetch(ctx, videoID, "")
}

// Fetch retrieves comments for a video newer than latestSeenID, walking
// newest-first pages and stopping at the first already-seen comment. An
// empty latestSeenID fetches the full history. Comments come back
// newest-first with nil sentiment; scoring happens downstream.
func (c *Client) Fetch(ctx context.Context, videoID, latestSeenID string) ([]persistence.Comment, error) {
	var comments []persistence.Comment
	pageToken := ""

	for {
		page, err := c.fetchPage(ctx, videoID, pageToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch comments for %s: %w", videoID, err)
		}

		for _, item := range page.Items {
			if latestSeenID != "" && item.CommentID == latestSeenID {
				return comments, nil
			}
			comment, ok := c.convert(videoID, item)
			if !ok {
				continue
			}
			comments = append(comments, comment)
		}

		if page.NextPageToken == "" || page.NextPageToken == pageToken {
			return comments, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) fetchPage(ctx context.Context, videoID, pageToken string) (*pageResponse, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source base URL: %w", err)
	}

	q := u.Query()
	q.Set("video_id", videoID)
	q.Set("page_size", strconv.Itoa(c.config.PageSize))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	if c.config.APIKey != "" {
		q.Set("key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.metrics.RecordSourceRequest(telemetry.StatusError)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordSourceRequest(telemetry.StatusError)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		c.metrics.RecordSourceRequest(telemetry.StatusError)
		return nil, fmt.Errorf("failed to decode comments page: %w", err)
	}

	c.metrics.RecordSourceRequest(telemetry.StatusOK)

	log.Debug().
		Str("video_id", videoID).
		Int("items", len(page.Items)).
		Dur("duration", duration).
		Msg("Comments page retrieved")

	return &page, nil
}

// convert validates one wire item. Malformed items are logged and dropped
// rather than failing the whole page.
func (c *Client) convert(videoID string, item pageItem) (persistence.Comment, bool) {
	if item.CommentID == "" || item.AuthorID == "" {
		log.Warn().
			Str("video_id", videoID).
			Str("comment_id", item.CommentID).
			Msg("Skipping malformed comment item")
		return persistence.Comment{}, false
	}

	publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
	if err != nil {
		log.Warn().
			Err(err).
			Str("video_id", videoID).
			Str("comment_id", item.CommentID).
			Msg("Skipping comment with invalid published_at")
		return persistence.Comment{}, false
	}

	return persistence.Comment{
		CommentID:   item.CommentID,
		VideoID:     videoID,
		AuthorID:    item.AuthorID,
		Text:        item.Text,
		PublishedAt: publishedAt.UTC(),
		FetchedAt:   time.Now().UTC(),
	}, true
}
