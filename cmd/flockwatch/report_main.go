package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flockwatch/flockwatch/internal/persistence/postgres"
	"github.com/flockwatch/flockwatch/internal/report"
)

// runReport serves the offline forensic views over persisted data.
func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	videoID, _ := cmd.Flags().GetString("video")
	authors, _ := cmd.Flags().GetBool("authors")
	bursts, _ := cmd.Flags().GetBool("bursts")
	percentile, _ := cmd.Flags().GetFloat64("percentile")
	limit, _ := cmd.Flags().GetInt("limit")
	minPerMinute, _ := cmd.Flags().GetInt("min-per-minute")

	ctx := context.Background()

	manager, err := postgres.NewManager(cfg.Database.PoolConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer manager.Close()

	analyzer := report.NewAnalyzer(manager.Repository(), cfg.MaxWindows, cfg.WarmupPeriod)

	switch {
	case authors:
		rows, err := analyzer.Authors(ctx, videoID, limit)
		if err != nil {
			return err
		}
		fmt.Print(report.RenderAuthors(videoID, rows))

	case bursts:
		rows, err := analyzer.Bursts(ctx, videoID, minPerMinute)
		if err != nil {
			return err
		}
		fmt.Print(report.RenderBursts(videoID, minPerMinute, rows))

	default:
		rep, err := analyzer.Anomalies(ctx, videoID, percentile)
		if err != nil {
			return err
		}
		fmt.Print(report.RenderAnomalies(rep))
	}
	return nil
}
