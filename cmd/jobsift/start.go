package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobsift/jobsift/internal/aggregate"
	"github.com/jobsift/jobsift/internal/cache"
	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/dedup"
	"github.com/jobsift/jobsift/internal/model"
	"github.com/jobsift/jobsift/internal/scheduler"
	"github.com/jobsift/jobsift/internal/score"
	"github.com/jobsift/jobsift/internal/source"
	"github.com/jobsift/jobsift/internal/store"
	"github.com/jobsift/jobsift/internal/webhook"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ingest daemon",
	Long:  "Start the periodic ingest loop and, when configured, the webhook listener; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		"interval", cfg.Scheduler.Interval.String(),
		"greenhouse_boards", len(cfg.Sources.Greenhouse),
		"lever_sites", len(cfg.Sources.Lever),
		"remotive", cfg.Sources.Remotive,
		"webhook", cfg.Webhook.ListenAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var postingStore model.PostingStore
	if cfg.Store.DryRun {
		logger.Info("dry-run mode enabled, nothing will be persisted")
		postingStore = store.NewNopStore()
	} else {
		sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			logger.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		postingStore = sqlStore
	}

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
	deduper := dedup.NewEngine(dedup.Config{
		Threshold:             cfg.Dedup.Threshold,
		OverrideConfidence:    cfg.Dedup.OverrideConfidence,
		TitleSimilarity:       cfg.Dedup.TitleSimilarity,
		DescriptionSimilarity: cfg.Dedup.DescriptionSimilarity,
		Lookback:              cfg.Dedup.Lookback,
	}, logger)
	scorer, err := score.NewEngine(cfg.Scoring.Weights)
	if err != nil {
		logger.Error("invalid scoring weights", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(aggregator, deduper, scorer, postingStore,
		cfg.Scoring.Profile.Profile(),
		func(now time.Time) model.SearchFilters {
			return cfg.Scheduler.Filters(now, cfg.Dedup.Lookback)
		},
		cfg.Scheduler.Interval, logger)
	sched.OnMatch(func(p model.UnifiedJobPosting, s model.JobScore) {
		logger.Info("new match",
			"posting", p.ID,
			"title", p.Title,
			"company", p.Company.Name,
			"score", s.Overall,
		)
	})

	if cfg.Webhook.ListenAddr != "" {
		startWebhookServer(ctx, cfg, sources, sched, postingStore, logger)
	}

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// setupCache builds the two-tier cache; an unreachable redis degrades to
// in-process only rather than failing startup.
func setupCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) *cache.Manager {
	opts := cache.Options{
		Prefix:        cfg.Cache.Prefix,
		MaxBytes:      cfg.Cache.MaxBytes,
		SweepInterval: cfg.Cache.SweepInterval,
	}
	if cfg.Cache.RedisAddr != "" {
		backend, err := cache.NewRedisBackend(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, continuing with in-process cache only",
				"addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			opts.Backend = backend
			logger.Info("redis cache connected", "addr", cfg.Cache.RedisAddr)
		}
	}
	return cache.NewManager(opts, logger)
}

// jobEvent is the payload shape job boards push for posting lifecycle
// events.
type jobEvent struct {
	JobID string `json:"jobId"`
}

// startWebhookServer wires the processor's handlers and serves until the
// context is cancelled.
func startWebhookServer(ctx context.Context, cfg *config.Config, sources []model.SourceClient,
	sched *scheduler.Scheduler, postingStore model.PostingStore, logger *slog.Logger) {
	processor := webhook.NewProcessor(cfg.Webhook.Secrets, webhook.Config{
		Tolerance:      cfg.Webhook.Tolerance,
		MaxBodyBytes:   cfg.Webhook.MaxBodyBytes,
		HandlerRetries: cfg.Webhook.HandlerRetries,
	}, logger)

	bySource := make(map[string]model.SourceClient, len(sources))
	for _, src := range sources {
		bySource[string(src.Source())] = src
	}

	for name := range cfg.Webhook.Secrets {
		src, hasClient := bySource[name]

		if hasClient {
			// A pushed posting enters the same dedup/score path as a
			// polled one.
			refetch := func(ctx context.Context, evt webhook.Event) error {
				var data jobEvent
				if err := json.Unmarshal(evt.Data, &data); err != nil || data.JobID == "" {
					return webhook.ErrMalformedPayload
				}
				posting, err := src.GetJob(ctx, data.JobID)
				if err != nil {
					return err
				}
				if posting == nil {
					logger.Warn("pushed job not found upstream", "source", evt.Source, "job", data.JobID)
					return nil
				}
				return sched.Ingest(*posting)
			}
			processor.Register(name, "job.created", "ingest", refetch)
			processor.Register(name, "job.updated", "ingest", refetch)
		}

		processor.Register(name, "job.closed", "close", func(ctx context.Context, evt webhook.Event) error {
			var data jobEvent
			if err := json.Unmarshal(evt.Data, &data); err != nil || data.JobID == "" {
				return webhook.ErrMalformedPayload
			}
			return postingStore.MarkInactive(data.JobID)
		})
	}

	srv := &http.Server{
		Addr:    cfg.Webhook.ListenAddr,
		Handler: webhook.NewServer(processor, logger).Router(),
	}
	go func() {
		logger.Info("webhook listener starting", "addr", cfg.Webhook.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("webhook listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("webhook shutdown", "error", err)
		}
	}()
}
