package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/jobsift/jobsift/internal/cache"
	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/model"
	"github.com/jobsift/jobsift/internal/ratelimit"
	"github.com/jobsift/jobsift/internal/retry"
	"github.com/jobsift/jobsift/internal/source"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobsift",
	Short: "Job posting ingester — aggregate, dedup, score",
	Long:  "JobSift pulls postings from multiple job boards, resolves cross-board duplicates, and ranks what's left against your preference profile.",
	// Default to `start` so `jobsift` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBSIFT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBSIFT_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBSIFT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// setupRateLimits converts the config shape into the limiter registry.
func setupRateLimits(cfg *config.Config) *ratelimit.Registry {
	limits := make(map[string]ratelimit.SourceLimit, len(cfg.Sources.RateLimits))
	for name, rl := range cfg.Sources.RateLimits {
		limits[name] = ratelimit.SourceLimit{Requests: rl.Requests, Per: rl.Per}
	}
	return ratelimit.NewRegistry(limits, ratelimit.SourceLimit{})
}

func setupExecutor(cfg *config.Config, logger *slog.Logger) *retry.Executor {
	return retry.NewExecutor(retry.Config{
		BaseDelay:     cfg.Retry.BaseDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		Breaker: retry.BreakerConfig{
			FailureThreshold: cfg.Retry.FailureThreshold,
			MonitoringPeriod: cfg.Retry.MonitoringPeriod,
			ResetTimeout:     cfg.Retry.ResetTimeout,
		},
	}, logger)
}

// buildSources constructs every configured board adapter wrapped in the
// shared pipeline substrate.
func buildSources(cfg *config.Config, httpClient *http.Client, limiters *ratelimit.Registry,
	exec *retry.Executor, cacheMgr *cache.Manager, logger *slog.Logger) []model.SourceClient {
	opts := source.PipelineOptions{
		MaxRetries: cfg.Retry.MaxRetries,
		SearchTTL:  cfg.Cache.SearchTTL,
		JobTTL:     cfg.Cache.JobTTL,
	}
	wrap := func(inner model.SourceClient) model.SourceClient {
		return source.NewPipeline(inner, limiters, exec, cacheMgr, opts, logger)
	}

	var sources []model.SourceClient
	if len(cfg.Sources.Greenhouse) > 0 {
		boards := make([]source.GreenhouseBoard, 0, len(cfg.Sources.Greenhouse))
		for _, b := range cfg.Sources.Greenhouse {
			boards = append(boards, source.GreenhouseBoard{Token: b.Token, Company: b.Company})
		}
		sources = append(sources, wrap(source.NewGreenhouseClient(boards, httpClient)))
		logger.Info("registered source", "source", model.SourceGreenhouse, "boards", len(boards))
	}
	if len(cfg.Sources.Lever) > 0 {
		sites := make([]source.LeverSite, 0, len(cfg.Sources.Lever))
		for _, s := range cfg.Sources.Lever {
			sites = append(sites, source.LeverSite{Slug: s.Slug, Company: s.Company})
		}
		sources = append(sources, wrap(source.NewLeverClient(sites, httpClient)))
		logger.Info("registered source", "source", model.SourceLever, "sites", len(sites))
	}
	if cfg.Sources.Remotive {
		sources = append(sources, wrap(source.NewRemotiveClient(httpClient)))
		logger.Info("registered source", "source", model.SourceRemotive)
	}
	return sources
}
