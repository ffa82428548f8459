package persistence

import (
	"context"
	"time"
)

// TimeRange bounds a query over published_at. Bounds are inclusive; a zero
// From or To leaves that side of the range open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Comment is a single ingested comment. Rows are append-only: sentiment is
// attached before insert and never rewritten, duplicate ids are ignored.
type Comment struct {
	CommentID   string    `json:"comment_id" db:"comment_id"`
	VideoID     string    `json:"video_id" db:"video_id"`
	AuthorID    string    `json:"author_id" db:"author_id"`
	Text        string    `json:"text" db:"text"`
	Sentiment   *float64  `json:"sentiment,omitempty" db:"sentiment"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	FetchedAt   time.Time `json:"fetched_at" db:"fetched_at"`
}

// WindowMetrics is the derived behavioral record for one (video, window_start)
// pair. CoordinationScore stays nil until the video's baseline has warmed up.
type WindowMetrics struct {
	VideoID           string    `json:"video_id" db:"video_id"`
	WindowStart       time.Time `json:"window_start" db:"window_start"`
	TotalComments     int64     `json:"total_comments" db:"total_comments"`
	UniqueAuthors     int64     `json:"unique_authors" db:"unique_authors"`
	AvgLength         float64   `json:"avg_length" db:"avg_length"`
	AvgSentiment      float64   `json:"avg_sentiment" db:"avg_sentiment"`
	SentimentVariance float64   `json:"sentiment_variance" db:"sentiment_variance"`
	AvgGap            float64   `json:"avg_gap" db:"avg_gap"`
	GapVariance       float64   `json:"gap_variance" db:"gap_variance"`
	CoordinationScore *float64  `json:"coordination_score,omitempty" db:"coordination_score"`
}

// Concentration returns comments per distinct author for the window. Guards
// the zero-author case so empty windows stay at 0.
func (w WindowMetrics) Concentration() float64 {
	authors := w.UniqueAuthors
	if authors < 1 {
		authors = 1
	}
	return float64(w.TotalComments) / float64(authors)
}

// CommentSample is the projection of a comment consumed by windowed
// aggregation: author, character length, sentiment, publication instant.
type CommentSample struct {
	AuthorID    string    `db:"author_id"`
	TextChars   int64     `db:"text_chars"`
	Sentiment   *float64  `db:"sentiment"`
	PublishedAt time.Time `db:"published_at"`
}

// AuthorStat is one row of repeat-author forensic evidence for a window.
type AuthorStat struct {
	AuthorID string `json:"author_id" db:"author_id"`
	Count    int64  `json:"comment_count" db:"comment_count"`
	Sample   string `json:"sample_text" db:"sample_text"`
}

// AuthorActivity summarizes one author's full activity on a video.
type AuthorActivity struct {
	AuthorID  string    `json:"author_id" db:"author_id"`
	Count     int64     `json:"comment_count" db:"comment_count"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
	Sample    string    `json:"sample_text" db:"sample_text"`
}

// Burst is a per-author per-minute comment count at or above the query
// threshold — raw repetition-spam evidence.
type Burst struct {
	AuthorID    string    `json:"author_id" db:"author_id"`
	MinuteStart time.Time `json:"minute_start" db:"minute_start"`
	Count       int64     `json:"comment_count" db:"comment_count"`
}

// CommentsRepo provides append-only comment persistence and the read-only
// forensic queries built over it.
type CommentsRepo interface {
	// Insert adds one comment; a duplicate comment_id is a silent no-op.
	Insert(ctx context.Context, c Comment) error

	// InsertBatch adds many comments in one transaction with per-row
	// duplicate tolerance. Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, cs []Comment) (int64, error)

	// ListByVideo retrieves comments for a video within the range in
	// chronological order, up to limit (0 = no limit).
	ListByVideo(ctx context.Context, videoID string, tr TimeRange, limit int) ([]Comment, error)

	// TopAuthors returns the most frequent authors in the range with a
	// sample text each, ordered by descending comment count.
	TopAuthors(ctx context.Context, videoID string, tr TimeRange, limit int) ([]AuthorStat, error)

	// AuthorSummary returns per-author activity over the whole video,
	// ordered by descending comment count.
	AuthorSummary(ctx context.Context, videoID string, limit int) ([]AuthorActivity, error)

	// Bursts returns per-author per-minute counts of at least minPerMinute.
	Bursts(ctx context.Context, videoID string, minPerMinute int) ([]Burst, error)

	// Count returns the number of stored comments for a video.
	Count(ctx context.Context, videoID string) (int64, error)
}

// WindowsRepo persists derived window metric records keyed by
// (video_id, window_start) with overwrite-on-conflict semantics.
type WindowsRepo interface {
	// Upsert inserts the record or replaces every derived field of the
	// existing row for the same key.
	Upsert(ctx context.Context, w WindowMetrics) error

	// Get retrieves a single window record, nil when absent.
	Get(ctx context.Context, videoID string, windowStart time.Time) (*WindowMetrics, error)

	// ListByVideo retrieves window records in the range, most recent
	// first, up to limit (0 = no limit).
	ListByVideo(ctx context.Context, videoID string, tr TimeRange, limit int) ([]WindowMetrics, error)

	// Scores returns the scored windows for a video ascending by
	// window_start (rows whose coordination_score is set).
	Scores(ctx context.Context, videoID string) ([]WindowMetrics, error)

	// Count returns the number of stored window records.
	Count(ctx context.Context) (int64, error)
}

// AggregatesRepo streams comment samples into the window aggregator.
type AggregatesRepo interface {
	// IterSamples invokes fn for every comment of the video inside the
	// range in chronological order, without buffering the full set. A
	// non-nil error from fn stops the iteration and is returned as-is.
	IterSamples(ctx context.Context, videoID string, tr TimeRange, fn func(CommentSample) error) error
}

// Repository aggregates all persistence interfaces.
type Repository struct {
	Comments   CommentsRepo
	Windows    WindowsRepo
	Aggregates AggregatesRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer.
type RepositoryHealth interface {
	// Health returns current repository health status
	Health(ctx context.Context) HealthCheck

	// Ping tests basic connectivity to the database
	Ping(ctx context.Context) error

	// Stats returns connection pool statistics
	Stats(ctx context.Context) map[string]interface{}
}
