// Package config loads the YAML configuration file. Environment
// variables in the file are expanded before parsing, so secrets stay
// out of the file itself ("${REDIS_PASSWORD}").
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobsift/jobsift/internal/model"
)

// Config is the root configuration for the jobsift ingester.
type Config struct {
	Sources    SourcesConfig
	Cache      CacheConfig
	Retry      RetryConfig
	Webhook    WebhookConfig
	Dedup      DedupConfig
	Scoring    ScoringConfig
	Scheduler  SchedulerConfig
	Store      StoreConfig
	Aggregator AggregatorConfig
}

// BoardConfig names one greenhouse board to pull.
type BoardConfig struct {
	Company string `yaml:"company"`
	Token   string `yaml:"token"`
}

// SiteConfig names one lever site to pull.
type SiteConfig struct {
	Company string `yaml:"company"`
	Slug    string `yaml:"slug"`
}

// SourceLimit is a per-source rate contract.
type SourceLimit struct {
	Requests int
	Per      time.Duration
}

// SourcesConfig enumerates the boards to ingest and their rate limits.
type SourcesConfig struct {
	Greenhouse []BoardConfig
	Lever      []SiteConfig
	Remotive   bool
	RateLimits map[string]SourceLimit
}

// CacheConfig tunes the two-tier response cache. An empty RedisAddr
// runs in-process only.
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
	MaxBytes      int64
	SweepInterval time.Duration
	SearchTTL     time.Duration
	JobTTL        time.Duration
}

// RetryConfig tunes the retry executor and its circuit breaker.
type RetryConfig struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	BackoffFactor    float64
	FailureThreshold int
	MonitoringPeriod time.Duration
	ResetTimeout     time.Duration
}

// WebhookConfig tunes the inbound webhook server. An empty ListenAddr
// disables it.
type WebhookConfig struct {
	ListenAddr     string
	Secrets        map[string]string // source → shared secret
	Tolerance      time.Duration
	MaxBodyBytes   int64
	HandlerRetries int
}

// DedupConfig tunes the duplicate-detection engine.
type DedupConfig struct {
	Threshold             float64
	OverrideConfidence    float64
	TitleSimilarity       float64
	DescriptionSimilarity float64
	Lookback              time.Duration
}

// ProfileConfig is the user preference profile postings are scored
// against.
type ProfileConfig struct {
	DesiredTitles    []string `yaml:"desired_titles"`
	Skills           []string `yaml:"skills"`
	YearsExperience  int      `yaml:"years_experience"`
	SalaryMin        float64  `yaml:"salary_min"`
	SalaryMax        float64  `yaml:"salary_max"`
	Locations        []string `yaml:"locations"`
	RemotePreference string   `yaml:"remote_preference"`
	ExcludeKeywords  []string `yaml:"exclude_keywords"`
	RequireKeywords  []string `yaml:"require_keywords"`
}

// Profile converts the config shape to the scoring input.
func (p ProfileConfig) Profile() model.UserPreferenceProfile {
	return model.UserPreferenceProfile{
		DesiredTitles:    p.DesiredTitles,
		Skills:           p.Skills,
		YearsExperience:  p.YearsExperience,
		SalaryMin:        p.SalaryMin,
		SalaryMax:        p.SalaryMax,
		Locations:        p.Locations,
		RemotePreference: model.RemoteOption(p.RemotePreference),
		ExcludeKeywords:  p.ExcludeKeywords,
		RequireKeywords:  p.RequireKeywords,
	}
}

// ScoringConfig holds the component weights and the profile.
type ScoringConfig struct {
	Weights model.ScoreWeights
	Profile ProfileConfig
}

// SchedulerConfig drives the periodic ingest cycle.
type SchedulerConfig struct {
	Interval     time.Duration
	Keywords     string
	Location     string
	Remote       bool
	SalaryFloor  float64
	Category     string
	CleanupAfter time.Duration
}

// Filters builds the search filters for one cycle; lookback bounds
// PostedSince.
func (s SchedulerConfig) Filters(now time.Time, lookback time.Duration) model.SearchFilters {
	return model.SearchFilters{
		Keywords:    s.Keywords,
		Location:    s.Location,
		Remote:      s.Remote,
		SalaryFloor: s.SalaryFloor,
		Category:    s.Category,
		PostedSince: now.Add(-lookback),
	}
}

// StoreConfig locates the persistent store.
type StoreConfig struct {
	Path   string
	DryRun bool
}

// AggregatorConfig bounds multi-source fan-out.
type AggregatorConfig struct {
	Concurrency int
}

// rawConfig mirrors the YAML shape: snake_case keys and durations as
// strings.
type rawConfig struct {
	Sources struct {
		Greenhouse []BoardConfig `yaml:"greenhouse"`
		Lever      []SiteConfig  `yaml:"lever"`
		Remotive   bool          `yaml:"remotive"`
		RateLimits map[string]struct {
			Requests int    `yaml:"requests"`
			Per      string `yaml:"per"`
		} `yaml:"rate_limits"`
	} `yaml:"sources"`
	Cache struct {
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		Prefix        string `yaml:"prefix"`
		MaxBytes      int64  `yaml:"max_bytes"`
		SweepInterval string `yaml:"sweep_interval"`
		SearchTTL     string `yaml:"search_ttl"`
		JobTTL        string `yaml:"job_ttl"`
	} `yaml:"cache"`
	Retry struct {
		MaxRetries       int     `yaml:"max_retries"`
		BaseDelay        string  `yaml:"base_delay"`
		MaxDelay         string  `yaml:"max_delay"`
		BackoffFactor    float64 `yaml:"backoff_factor"`
		FailureThreshold int     `yaml:"failure_threshold"`
		MonitoringPeriod string  `yaml:"monitoring_period"`
		ResetTimeout     string  `yaml:"reset_timeout"`
	} `yaml:"retry"`
	Webhook struct {
		ListenAddr     string            `yaml:"listen_addr"`
		Secrets        map[string]string `yaml:"secrets"`
		Tolerance      string            `yaml:"tolerance"`
		MaxBodyBytes   int64             `yaml:"max_body_bytes"`
		HandlerRetries int               `yaml:"handler_retries"`
	} `yaml:"webhook"`
	Dedup struct {
		Threshold             float64 `yaml:"threshold"`
		OverrideConfidence    float64 `yaml:"override_confidence"`
		TitleSimilarity       float64 `yaml:"title_similarity"`
		DescriptionSimilarity float64 `yaml:"description_similarity"`
		Lookback              string  `yaml:"lookback"`
	} `yaml:"dedup"`
	Scoring struct {
		Weights *model.ScoreWeights `yaml:"weights"`
		Profile ProfileConfig       `yaml:"profile"`
	} `yaml:"scoring"`
	Scheduler struct {
		Interval     string  `yaml:"interval"`
		Keywords     string  `yaml:"keywords"`
		Location     string  `yaml:"location"`
		Remote       bool    `yaml:"remote"`
		SalaryFloor  float64 `yaml:"salary_floor"`
		Category     string  `yaml:"category"`
		CleanupAfter string  `yaml:"cleanup_after"`
	} `yaml:"scheduler"`
	Store struct {
		Path   string `yaml:"path"`
		DryRun bool   `yaml:"dry_run"`
	} `yaml:"store"`
	Aggregator struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"aggregator"`
}

// Load reads and parses the YAML config file at path, validates it, and
// returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{}

	cfg.Sources.Greenhouse = raw.Sources.Greenhouse
	cfg.Sources.Lever = raw.Sources.Lever
	cfg.Sources.Remotive = raw.Sources.Remotive
	cfg.Sources.RateLimits = make(map[string]SourceLimit)
	for source, rl := range raw.Sources.RateLimits {
		per, err := duration(rl.Per, time.Minute, fmt.Sprintf("sources.rate_limits[%s].per", source))
		if err != nil {
			return nil, err
		}
		cfg.Sources.RateLimits[source] = SourceLimit{Requests: rl.Requests, Per: per}
	}

	var err error
	cfg.Cache.RedisAddr = raw.Cache.RedisAddr
	cfg.Cache.RedisPassword = raw.Cache.RedisPassword
	cfg.Cache.RedisDB = raw.Cache.RedisDB
	cfg.Cache.Prefix = raw.Cache.Prefix
	cfg.Cache.MaxBytes = raw.Cache.MaxBytes
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = "jobsift"
	}
	if cfg.Cache.MaxBytes <= 0 {
		cfg.Cache.MaxBytes = 64 << 20
	}
	if cfg.Cache.SweepInterval, err = duration(raw.Cache.SweepInterval, time.Minute, "cache.sweep_interval"); err != nil {
		return nil, err
	}
	if cfg.Cache.SearchTTL, err = duration(raw.Cache.SearchTTL, 5*time.Minute, "cache.search_ttl"); err != nil {
		return nil, err
	}
	if cfg.Cache.JobTTL, err = duration(raw.Cache.JobTTL, 15*time.Minute, "cache.job_ttl"); err != nil {
		return nil, err
	}

	cfg.Retry.MaxRetries = raw.Retry.MaxRetries
	cfg.Retry.BackoffFactor = raw.Retry.BackoffFactor
	cfg.Retry.FailureThreshold = raw.Retry.FailureThreshold
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BackoffFactor <= 0 {
		cfg.Retry.BackoffFactor = 2
	}
	if cfg.Retry.FailureThreshold <= 0 {
		cfg.Retry.FailureThreshold = 5
	}
	if cfg.Retry.BaseDelay, err = duration(raw.Retry.BaseDelay, 500*time.Millisecond, "retry.base_delay"); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelay, err = duration(raw.Retry.MaxDelay, 30*time.Second, "retry.max_delay"); err != nil {
		return nil, err
	}
	if cfg.Retry.MonitoringPeriod, err = duration(raw.Retry.MonitoringPeriod, time.Minute, "retry.monitoring_period"); err != nil {
		return nil, err
	}
	if cfg.Retry.ResetTimeout, err = duration(raw.Retry.ResetTimeout, 30*time.Second, "retry.reset_timeout"); err != nil {
		return nil, err
	}

	cfg.Webhook.ListenAddr = raw.Webhook.ListenAddr
	cfg.Webhook.Secrets = raw.Webhook.Secrets
	cfg.Webhook.MaxBodyBytes = raw.Webhook.MaxBodyBytes
	cfg.Webhook.HandlerRetries = raw.Webhook.HandlerRetries
	if cfg.Webhook.Tolerance, err = duration(raw.Webhook.Tolerance, 5*time.Minute, "webhook.tolerance"); err != nil {
		return nil, err
	}

	cfg.Dedup.Threshold = raw.Dedup.Threshold
	cfg.Dedup.OverrideConfidence = raw.Dedup.OverrideConfidence
	cfg.Dedup.TitleSimilarity = raw.Dedup.TitleSimilarity
	cfg.Dedup.DescriptionSimilarity = raw.Dedup.DescriptionSimilarity
	if cfg.Dedup.Lookback, err = duration(raw.Dedup.Lookback, 30*24*time.Hour, "dedup.lookback"); err != nil {
		return nil, err
	}

	if raw.Scoring.Weights != nil {
		cfg.Scoring.Weights = *raw.Scoring.Weights
	} else {
		cfg.Scoring.Weights = model.DefaultScoreWeights()
	}
	cfg.Scoring.Profile = raw.Scoring.Profile

	cfg.Scheduler.Keywords = raw.Scheduler.Keywords
	cfg.Scheduler.Location = raw.Scheduler.Location
	cfg.Scheduler.Remote = raw.Scheduler.Remote
	cfg.Scheduler.SalaryFloor = raw.Scheduler.SalaryFloor
	cfg.Scheduler.Category = raw.Scheduler.Category
	if cfg.Scheduler.Interval, err = duration(raw.Scheduler.Interval, 30*time.Minute, "scheduler.interval"); err != nil {
		return nil, err
	}
	if cfg.Scheduler.CleanupAfter, err = duration(raw.Scheduler.CleanupAfter, 90*24*time.Hour, "scheduler.cleanup_after"); err != nil {
		return nil, err
	}

	cfg.Store.Path = raw.Store.Path
	cfg.Store.DryRun = raw.Store.DryRun
	if cfg.Store.Path == "" {
		cfg.Store.Path = "jobsift.db"
	}

	cfg.Aggregator.Concurrency = raw.Aggregator.Concurrency

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// duration parses a YAML duration string, falling back to def when
// empty.
func duration(s string, def time.Duration, field string) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if len(cfg.Sources.Greenhouse) == 0 && len(cfg.Sources.Lever) == 0 && !cfg.Sources.Remotive {
		return fmt.Errorf("at least one source must be configured")
	}
	for i, b := range cfg.Sources.Greenhouse {
		if b.Token == "" {
			return fmt.Errorf("sources.greenhouse[%d]: token is required", i)
		}
	}
	for i, s := range cfg.Sources.Lever {
		if s.Slug == "" {
			return fmt.Errorf("sources.lever[%d]: slug is required", i)
		}
	}
	for source, rl := range cfg.Sources.RateLimits {
		if rl.Requests <= 0 {
			return fmt.Errorf("sources.rate_limits[%s].requests must be positive", source)
		}
	}

	if cfg.Scheduler.Interval < time.Minute {
		return fmt.Errorf("scheduler.interval must be at least 1m, got %v", cfg.Scheduler.Interval)
	}

	if cfg.Webhook.ListenAddr != "" && len(cfg.Webhook.Secrets) == 0 {
		return fmt.Errorf("webhook.secrets is required when webhook.listen_addr is set")
	}
	for source, secret := range cfg.Webhook.Secrets {
		if strings.TrimSpace(secret) == "" {
			return fmt.Errorf("webhook.secrets[%s] is empty", source)
		}
	}

	if err := cfg.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring.weights: %w", err)
	}

	if cfg.Dedup.Threshold < 0 || cfg.Dedup.Threshold > 100 {
		return fmt.Errorf("dedup.threshold must be in [0,100], got %v", cfg.Dedup.Threshold)
	}
	return nil
}
