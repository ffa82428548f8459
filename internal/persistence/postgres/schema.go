package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/flockwatch/flockwatch/internal/persistence"
)

// Schema statements are idempotent so every startup path can apply them.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS comments (
		comment_id   TEXT PRIMARY KEY,
		video_id     TEXT NOT NULL,
		author_id    TEXT NOT NULL,
		text         TEXT NOT NULL,
		sentiment    DOUBLE PRECISION,
		published_at TIMESTAMPTZ NOT NULL,
		fetched_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_video_published
		ON comments (video_id, published_at)`,
	`CREATE TABLE IF NOT EXISTS window_metrics (
		video_id           TEXT NOT NULL,
		window_start       TIMESTAMPTZ NOT NULL,
		total_comments     BIGINT NOT NULL DEFAULT 0,
		unique_authors     BIGINT NOT NULL DEFAULT 0,
		avg_length         DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_sentiment      DOUBLE PRECISION NOT NULL DEFAULT 0,
		sentiment_variance DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_gap            DOUBLE PRECISION NOT NULL DEFAULT 0,
		gap_variance       DOUBLE PRECISION NOT NULL DEFAULT 0,
		coordination_score DOUBLE PRECISION,
		PRIMARY KEY (video_id, window_start)
	)`,
}

// EnsureSchema applies the comments and window_metrics schema, creating
// anything missing. Safe to call on every startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// normalizeTS pins a timestamp to UTC second precision before it is written,
// so both stores compare and key on the same instant representation.
func normalizeTS(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// appendTimeBounds adds inclusive bounds on column for the open-ended range,
// extending the positional argument list as needed.
func appendTimeBounds(query string, args []interface{}, column string, tr persistence.TimeRange) (string, []interface{}) {
	if !tr.From.IsZero() {
		args = append(args, normalizeTS(tr.From))
		query += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if !tr.To.IsZero() {
		args = append(args, normalizeTS(tr.To))
		query += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}
	return query, args
}
