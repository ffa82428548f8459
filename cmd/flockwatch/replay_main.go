package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/persistence/postgres"
	"github.com/flockwatch/flockwatch/internal/replay"
	"github.com/flockwatch/flockwatch/internal/window"
)

// runReplay rebuilds each video's window metrics from the stored comments.
func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	videos, err := cmd.Flags().GetStringSlice("video")
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		videos = cfg.Videos
	}
	if len(videos) == 0 {
		return fmt.Errorf("no videos to replay; configure a videos list or pass --video")
	}

	ctx := context.Background()

	manager, err := postgres.NewManager(cfg.Database.PoolConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer manager.Close()

	if err := postgres.EnsureSchema(ctx, manager.DB()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	repo := manager.Repository()
	scorer := baseline.NewScorer(cfg.ScoreParams())
	engine := replay.NewEngine(
		window.NewAggregator(repo.Aggregates), repo.Windows, scorer, cfg.PollInterval())

	for _, videoID := range videos {
		b := baseline.New(videoID, cfg.MaxWindows, cfg.WarmupPeriod)

		summary, err := engine.Replay(ctx, videoID, b)
		if err != nil {
			return err
		}

		log.Info().
			Str("video_id", summary.VideoID).
			Int("windows", summary.Windows).
			Int("scored", summary.Scored).
			Int("alerts", summary.Alerts).
			Msg("Replay finished")
		fmt.Printf("%s: %d windows (%d scored, %d empty skipped, %d alerts) in %s\n",
			summary.VideoID, summary.Windows, summary.Scored, summary.Skipped,
			summary.Alerts, summary.Elapsed.Round(time.Millisecond))
	}
	return nil
}
