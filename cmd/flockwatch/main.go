package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flockwatch/flockwatch/internal/config"
)

const (
	appName = "flockwatch"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Coordinated-activity detection for video comment streams",
		Version: version,
		Long: `FlockWatch watches video comment streams for coordinated behavior:
bot floods, rhythmic posting cadences, scripted narratives, and brigade
spikes. Each video gets a rolling behavioral baseline; every polling window
is scored against it with robust statistics and flagged windows are reported
with forensic evidence.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to configuration file")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll configured videos live and score each window",
		Long: `Backfills each configured video's comment history, warms its baseline by
replaying the stored comments, then polls for new comments every interval and
scores each live window. Runs until interrupted.`,
		RunE: runWatch,
	}
	watchCmd.Flags().String("monitor", "", "Monitor listen address (overrides config, implies enabled)")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild window metrics from stored comments",
		Long: `Buckets each video's persisted comments into fixed windows, scores them
chronologically against a fresh baseline, and upserts the resulting rows.
Safe to run repeatedly; the outcome is identical each time.`,
		RunE: runReplay,
	}
	replayCmd.Flags().StringSlice("video", nil, "Video id to replay (repeatable; defaults to the config videos)")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Offline anomaly and forensic reports",
		Long: `Reads persisted scores and comments only; never fetches. The default view
lists the score distribution and the windows above the percentile threshold
with their alert categories.`,
		RunE: runReport,
	}
	reportCmd.Flags().String("video", "", "Video id to report on (required)")
	reportCmd.Flags().Bool("authors", false, "Per-author behavioral summary")
	reportCmd.Flags().Bool("bursts", false, "Per-author per-minute burst detection")
	reportCmd.Flags().Float64("percentile", 95, "Score percentile threshold for the anomaly listing")
	reportCmd.Flags().Int("limit", 25, "Maximum authors listed with --authors")
	reportCmd.Flags().Int("min-per-minute", 3, "Burst threshold with --bursts")
	_ = reportCmd.MarkFlagRequired("video")

	rootCmd.AddCommand(watchCmd, replayCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the YAML named by --config and applies its log level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if cfg.LogLevel != "" {
		if level, perr := zerolog.ParseLevel(cfg.LogLevel); perr == nil {
			zerolog.SetGlobalLevel(level)
		} else {
			log.Warn().Str("log_level", cfg.LogLevel).Msg("Unknown log level, keeping info")
		}
	}
	return cfg, nil
}
