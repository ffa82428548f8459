package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/flockwatch/flockwatch/internal/persistence"
)

// aggregatesRepo streams comment samples into the window aggregator.
type aggregatesRepo struct {
	db *sqlx.DB
}

// NewAggregatesRepo creates a new PostgreSQL sample stream for aggregation.
func NewAggregatesRepo(db *sqlx.DB) persistence.AggregatesRepo {
	return &aggregatesRepo{db: db}
}

// IterSamples invokes fn for every comment of the video inside the range in
// chronological order. Rows are cursor-streamed, not buffered. The sweep runs
// under the caller's context only: a full-history replay may legitimately
// exceed the single-query timeout budget.
func (r *aggregatesRepo) IterSamples(ctx context.Context, videoID string, tr persistence.TimeRange, fn func(persistence.CommentSample) error) error {
	query := `
		SELECT author_id, char_length(text) AS text_chars, sentiment, published_at
		FROM comments
		WHERE video_id = $1`
	args := []interface{}{videoID}
	query, args = appendTimeBounds(query, args, "published_at", tr)
	query += `
		ORDER BY published_at ASC, comment_id ASC`

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query comment samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s persistence.CommentSample
		if err := rows.StructScan(&s); err != nil {
			return fmt.Errorf("failed to scan comment sample: %w", err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating comment samples: %w", err)
	}
	return nil
}
