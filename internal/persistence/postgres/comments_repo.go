package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/flockwatch/flockwatch/internal/persistence"
)

// commentsRepo implements CommentsRepo for PostgreSQL
type commentsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewCommentsRepo creates a new PostgreSQL comments repository
func NewCommentsRepo(db *sqlx.DB, timeout time.Duration) persistence.CommentsRepo {
	return &commentsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert adds one comment. Re-fetches deliver ids we already hold, so a
// duplicate key is swallowed rather than surfaced.
func (r *commentsRepo) Insert(ctx context.Context, c persistence.Comment) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO comments (comment_id, video_id, author_id, text, sentiment, published_at, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		c.CommentID, c.VideoID, c.AuthorID, c.Text, c.Sentiment,
		normalizeTS(c.PublishedAt), normalizeTS(c.FetchedAt))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	return nil
}

// InsertBatch adds multiple comments in one transaction with per-row
// duplicate tolerance, returning the number of rows actually inserted.
func (r *commentsRepo) InsertBatch(ctx context.Context, cs []persistence.Comment) (int64, error) {
	if len(cs) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(cs)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO comments (comment_id, video_id, author_id, text, sentiment, published_at, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (comment_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, c := range cs {
		res, err := stmt.ExecContext(ctx,
			c.CommentID, c.VideoID, c.AuthorID, c.Text, c.Sentiment,
			normalizeTS(c.PublishedAt), normalizeTS(c.FetchedAt))
		if err != nil {
			return 0, fmt.Errorf("failed to insert comment in batch: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read batch insert result: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit comment batch: %w", err)
	}
	return inserted, nil
}

// ListByVideo retrieves comments for a video within the range in
// chronological order, up to limit (0 = no limit).
func (r *commentsRepo) ListByVideo(ctx context.Context, videoID string, tr persistence.TimeRange, limit int) ([]persistence.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT comment_id, video_id, author_id, text, sentiment, published_at, fetched_at
		FROM comments
		WHERE video_id = $1`
	args := []interface{}{videoID}
	query, args = appendTimeBounds(query, args, "published_at", tr)
	query += `
		ORDER BY published_at ASC, comment_id ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(`
		LIMIT $%d`, len(args))
	}

	var comments []persistence.Comment
	if err := r.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query comments by video: %w", err)
	}
	return comments, nil
}

// TopAuthors returns the most frequent authors in the range with a sample
// text each, ordered by descending comment count.
func (r *commentsRepo) TopAuthors(ctx context.Context, videoID string, tr persistence.TimeRange, limit int) ([]persistence.AuthorStat, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT author_id, COUNT(*) AS comment_count, MIN(text) AS sample_text
		FROM comments
		WHERE video_id = $1`
	args := []interface{}{videoID}
	query, args = appendTimeBounds(query, args, "published_at", tr)
	query += `
		GROUP BY author_id
		ORDER BY comment_count DESC, author_id ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(`
		LIMIT $%d`, len(args))
	}

	var stats []persistence.AuthorStat
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query top authors: %w", err)
	}
	return stats, nil
}

// AuthorSummary returns per-author activity over the whole video, ordered by
// descending comment count.
func (r *commentsRepo) AuthorSummary(ctx context.Context, videoID string, limit int) ([]persistence.AuthorActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT author_id,
		       COUNT(*) AS comment_count,
		       MIN(published_at) AS first_seen,
		       MAX(published_at) AS last_seen,
		       MIN(text) AS sample_text
		FROM comments
		WHERE video_id = $1
		GROUP BY author_id
		ORDER BY comment_count DESC, author_id ASC`
	args := []interface{}{videoID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(`
		LIMIT $%d`, len(args))
	}

	var acts []persistence.AuthorActivity
	if err := r.db.SelectContext(ctx, &acts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query author summary: %w", err)
	}
	return acts, nil
}

// Bursts returns per-author per-minute counts of at least minPerMinute,
// busiest minutes first.
func (r *commentsRepo) Bursts(ctx context.Context, videoID string, minPerMinute int) ([]persistence.Burst, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT author_id,
		       date_trunc('minute', published_at) AS minute_start,
		       COUNT(*) AS comment_count
		FROM comments
		WHERE video_id = $1
		GROUP BY author_id, date_trunc('minute', published_at)
		HAVING COUNT(*) >= $2
		ORDER BY comment_count DESC, minute_start ASC, author_id ASC`

	var bursts []persistence.Burst
	if err := r.db.SelectContext(ctx, &bursts, query, videoID, minPerMinute); err != nil {
		return nil, fmt.Errorf("failed to query bursts: %w", err)
	}
	return bursts, nil
}

// Count returns the number of stored comments for a video.
func (r *commentsRepo) Count(ctx context.Context, videoID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM comments WHERE video_id = $1`, videoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return count, nil
}
