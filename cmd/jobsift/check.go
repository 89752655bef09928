package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobsift/jobsift/internal/aggregate"
	"github.com/jobsift/jobsift/internal/dedup"
	"github.com/jobsift/jobsift/internal/model"
	"github.com/jobsift/jobsift/internal/scheduler"
	"github.com/jobsift/jobsift/internal/score"
	"github.com/jobsift/jobsift/internal/source"
	"github.com/jobsift/jobsift/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe sources and run one dry ingest cycle",
	Long:  "One-shot mode: probes every configured source, runs a single ingest cycle against a throwaway store, prints scored matches, exits. Nothing is persisted.",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("check mode: nothing will be persisted")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheMgr := setupCache(ctx, cfg, logger)
	limiters := setupRateLimits(cfg)
	defer limiters.Close()
	exec := setupExecutor(cfg, logger)

	httpClient := source.NewHTTPClient()
	sources := buildSources(cfg, httpClient, limiters, exec, cacheMgr, logger)
	if len(sources) == 0 {
		logger.Error("no sources configured")
		os.Exit(1)
	}

	aggregator := aggregate.NewAggregator(sources, cfg.Aggregator.Concurrency, logger)

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for src, ok := range aggregator.Availability(probeCtx) {
		status := "ok"
		if !ok {
			status = "UNAVAILABLE"
		}
		fmt.Printf("%-12s %s\n", src, status)
	}

	scorer, err := score.NewEngine(cfg.Scoring.Weights)
	if err != nil {
		logger.Error("invalid scoring weights", "error", err)
		os.Exit(1)
	}
	deduper := dedup.NewEngine(dedup.Config{
		Threshold:             cfg.Dedup.Threshold,
		OverrideConfidence:    cfg.Dedup.OverrideConfidence,
		TitleSimilarity:       cfg.Dedup.TitleSimilarity,
		DescriptionSimilarity: cfg.Dedup.DescriptionSimilarity,
		Lookback:              cfg.Dedup.Lookback,
	}, logger)

	sched := scheduler.New(aggregator, deduper, scorer, store.NewNopStore(),
		cfg.Scoring.Profile.Profile(),
		func(now time.Time) model.SearchFilters {
			return cfg.Scheduler.Filters(now, cfg.Dedup.Lookback)
		},
		cfg.Scheduler.Interval, logger)
	sched.OnMatch(func(p model.UnifiedJobPosting, s model.JobScore) {
		fmt.Printf("%5.1f  %-40s %-20s %s\n", s.Overall, p.Title, p.Company.Name, p.ID)
	})

	stats := sched.RunOnce(ctx)
	fmt.Printf("\nfetched=%d created=%d linked=%d source_errors=%d elapsed=%s\n",
		stats.Fetched, stats.Created, stats.Linked, stats.SourceErrs, stats.Elapsed.Round(time.Millisecond))
	return nil
}
