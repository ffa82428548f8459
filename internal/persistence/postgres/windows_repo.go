package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flockwatch/flockwatch/internal/persistence"
)

// windowsRepo implements WindowsRepo for PostgreSQL
type windowsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWindowsRepo creates a new PostgreSQL window metrics repository
func NewWindowsRepo(db *sqlx.DB, timeout time.Duration) persistence.WindowsRepo {
	return &windowsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert inserts the record or replaces every derived field of the existing
// row for the same (video_id, window_start) key.
func (r *windowsRepo) Upsert(ctx context.Context, w persistence.WindowMetrics) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO window_metrics (
			video_id, window_start, total_comments, unique_authors, avg_length,
			avg_sentiment, sentiment_variance, avg_gap, gap_variance, coordination_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (video_id, window_start) DO UPDATE SET
			total_comments     = EXCLUDED.total_comments,
			unique_authors     = EXCLUDED.unique_authors,
			avg_length         = EXCLUDED.avg_length,
			avg_sentiment      = EXCLUDED.avg_sentiment,
			sentiment_variance = EXCLUDED.sentiment_variance,
			avg_gap            = EXCLUDED.avg_gap,
			gap_variance       = EXCLUDED.gap_variance,
			coordination_score = EXCLUDED.coordination_score`

	_, err := r.db.ExecContext(ctx, query,
		w.VideoID, normalizeTS(w.WindowStart), w.TotalComments, w.UniqueAuthors,
		w.AvgLength, w.AvgSentiment, w.SentimentVariance, w.AvgGap,
		w.GapVariance, w.CoordinationScore)
	if err != nil {
		return fmt.Errorf("failed to upsert window metrics: %w", err)
	}
	return nil
}

// Get retrieves a single window record, nil when absent.
func (r *windowsRepo) Get(ctx context.Context, videoID string, windowStart time.Time) (*persistence.WindowMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT video_id, window_start, total_comments, unique_authors, avg_length,
		       avg_sentiment, sentiment_variance, avg_gap, gap_variance, coordination_score
		FROM window_metrics
		WHERE video_id = $1 AND window_start = $2`

	var w persistence.WindowMetrics
	err := r.db.GetContext(ctx, &w, query, videoID, normalizeTS(windowStart))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get window metrics: %w", err)
	}
	return &w, nil
}

// ListByVideo retrieves window records in the range, most recent first, up to
// limit (0 = no limit).
func (r *windowsRepo) ListByVideo(ctx context.Context, videoID string, tr persistence.TimeRange, limit int) ([]persistence.WindowMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT video_id, window_start, total_comments, unique_authors, avg_length,
		       avg_sentiment, sentiment_variance, avg_gap, gap_variance, coordination_score
		FROM window_metrics
		WHERE video_id = $1`
	args := []interface{}{videoID}
	query, args = appendTimeBounds(query, args, "window_start", tr)
	query += `
		ORDER BY window_start DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(`
		LIMIT $%d`, len(args))
	}

	var ws []persistence.WindowMetrics
	if err := r.db.SelectContext(ctx, &ws, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query window metrics by video: %w", err)
	}
	return ws, nil
}

// Scores returns the scored windows for a video ascending by window_start.
func (r *windowsRepo) Scores(ctx context.Context, videoID string) ([]persistence.WindowMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT video_id, window_start, total_comments, unique_authors, avg_length,
		       avg_sentiment, sentiment_variance, avg_gap, gap_variance, coordination_score
		FROM window_metrics
		WHERE video_id = $1 AND coordination_score IS NOT NULL
		ORDER BY window_start ASC`

	var ws []persistence.WindowMetrics
	if err := r.db.SelectContext(ctx, &ws, query, videoID); err != nil {
		return nil, fmt.Errorf("failed to query window scores: %w", err)
	}
	return ws, nil
}

// Count returns the number of stored window records.
func (r *windowsRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM window_metrics`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count window metrics: %w", err)
	}
	return count, nil
}
