package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/flockwatch/flockwatch/internal/alert"
	"github.com/flockwatch/flockwatch/internal/baseline"
	"github.com/flockwatch/flockwatch/internal/ingest"
	monitorhttp "github.com/flockwatch/flockwatch/internal/interfaces/http"
	"github.com/flockwatch/flockwatch/internal/net/breaker"
	"github.com/flockwatch/flockwatch/internal/net/budget"
	netclient "github.com/flockwatch/flockwatch/internal/net/client"
	"github.com/flockwatch/flockwatch/internal/net/ratelimit"
	"github.com/flockwatch/flockwatch/internal/persistence/postgres"
	"github.com/flockwatch/flockwatch/internal/replay"
	"github.com/flockwatch/flockwatch/internal/sentiment"
	"github.com/flockwatch/flockwatch/internal/telemetry"
	"github.com/flockwatch/flockwatch/internal/watch"
	"github.com/flockwatch/flockwatch/internal/window"
)

// runWatch wires the full pipeline and runs the per-video polling loops
// until SIGINT/SIGTERM.
func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Videos) == 0 {
		return fmt.Errorf("no videos configured; add a videos list to the config")
	}
	if cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required for watch")
	}
	if addr, _ := cmd.Flags().GetString("monitor"); addr != "" {
		cfg.Monitor.Enabled = true
		cfg.Monitor.Listen = addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := postgres.NewManager(cfg.Database.PoolConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer manager.Close()

	if err := postgres.EnsureSchema(ctx, manager.DB()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	repo := manager.Repository()
	metrics := telemetry.Default()

	// Comment source behind the full guard stack: daily budget, per-host
	// rate limit, circuit breaker.
	var budgetTracker *budget.Tracker
	if cfg.Source.Budget.DailyLimit > 0 {
		budgetTracker = budget.NewTracker("source",
			cfg.Source.Budget.DailyLimit,
			cfg.Source.Budget.ResetHourUTC,
			cfg.Source.Budget.WarnThreshold)
	}
	sourceCfg := cfg.Source.ClientConfig()
	sourceHTTP := netclient.NewHTTPClient(netclient.WrapperConfig{
		Upstream:       "source",
		RateLimiter:    ratelimit.NewLimiter(cfg.Source.Rate.RPS, cfg.Source.Rate.Burst),
		CircuitBreaker: breaker.New(breaker.DefaultConfig("source")),
		BudgetTracker:  budgetTracker,
	}, sourceCfg.RequestTimeout)
	source := ingest.NewClient(sourceCfg, sourceHTTP, metrics)

	// Sentiment service, breaker-wrapped, with the optional redis cache.
	sentimentCfg := cfg.Sentiment.ClientConfig()
	sentimentHTTP := netclient.NewHTTPClient(netclient.WrapperConfig{
		Upstream:       "sentiment",
		CircuitBreaker: breaker.New(breaker.DefaultConfig("sentiment")),
	}, sentimentCfg.RequestTimeout)
	var scorer sentiment.Scorer = sentiment.NewClient(sentimentCfg, sentimentHTTP)
	if cfg.Sentiment.Cache.Enabled {
		cacheCfg := cfg.Sentiment.CacheClientConfig()
		redisClient := sentiment.NewRedisClient(cacheCfg)
		defer redisClient.Close()
		scorer = sentiment.NewCachedScorer(scorer, redisClient, cacheCfg.TTL)
	}

	history := alert.NewHistory(cfg.Alerts.HistorySize)
	sinks := []alert.Sink{history}
	for _, name := range cfg.Alerts.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, alert.LogSink{})
		case "stdout":
			sinks = append(sinks, alert.NewConsoleSink(os.Stdout))
		}
	}

	var monitor *monitorhttp.Server
	if cfg.Monitor.Enabled {
		monitorCfg := monitorhttp.DefaultConfig()
		monitorCfg.Listen = cfg.Monitor.Listen
		monitor = monitorhttp.NewServer(monitorCfg, monitorhttp.Deps{
			Health:  manager.Health(),
			Windows: repo.Windows,
			History: history,
			Metrics: telemetry.Handler(),
		})
		sinks = append(sinks, monitor.AlertSink())
	}

	reporter := alert.NewReporter(repo.Comments, cfg.PollInterval(), sinks...)
	baseScorer := baseline.NewScorer(cfg.ScoreParams())
	replayEngine := replay.NewEngine(
		window.NewAggregator(repo.Aggregates), repo.Windows, baseScorer, cfg.PollInterval())

	watchCfg := watch.Config{
		PollInterval: cfg.PollInterval(),
		MaxWindows:   cfg.MaxWindows,
		Warmup:       cfg.WarmupPeriod,
	}
	deps := watch.Deps{
		Source:    source,
		Sentiment: scorer,
		Repo:      repo,
		Scorer:    baseScorer,
		Reporter:  reporter,
		Replay:    replayEngine,
		Metrics:   metrics,
		Budget:    budgetTracker,
	}
	watchers := make([]*watch.Watcher, len(cfg.Videos))
	for i, videoID := range cfg.Videos {
		watchers[i] = watch.NewWatcher(videoID, watchCfg, deps)
	}
	supervisor := watch.NewSupervisor(watchers...)

	serverErr := make(chan error, 1)
	if monitor != nil {
		go func() {
			if err := monitor.Start(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	log.Info().
		Int("videos", len(cfg.Videos)).
		Dur("poll_interval", cfg.PollInterval()).
		Bool("monitor", monitor != nil).
		Msg("FlockWatch started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	case err := <-serverErr:
		log.Error().Err(err).Msg("Monitor server failed")
		cancel()
	case <-done:
		log.Warn().Msg("All watchers exited")
	}

	<-done

	if monitor != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := monitor.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Monitor shutdown error")
		}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
