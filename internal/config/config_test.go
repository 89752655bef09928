package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
sources:
  greenhouse:
    - company: Acme
      token: acme
  lever:
    - company: Globex
      slug: globex
  remotive: true
  rate_limits:
    greenhouse:
      requests: 50
      per: 1m
cache:
  redis_addr: localhost:6379
  prefix: jobsift-test
  search_ttl: 2m
retry:
  max_retries: 4
  base_delay: 250ms
  failure_threshold: 3
webhook:
  listen_addr: :8080
  secrets:
    greenhouse: ${JOBSIFT_TEST_SECRET}
  tolerance: 2m
dedup:
  threshold: 85
  lookback: 720h
scoring:
  profile:
    desired_titles: ["Backend Engineer"]
    skills: ["Go"]
    years_experience: 5
    remote_preference: remote
scheduler:
  interval: 15m
  keywords: engineer
store:
  path: /tmp/jobsift-test.db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	t.Setenv("JOBSIFT_TEST_SECRET", "hunter2")
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Sources.Greenhouse) != 1 || cfg.Sources.Greenhouse[0].Token != "acme" {
		t.Errorf("greenhouse boards: %+v", cfg.Sources.Greenhouse)
	}
	if rl := cfg.Sources.RateLimits["greenhouse"]; rl.Requests != 50 || rl.Per != time.Minute {
		t.Errorf("rate limit: %+v", rl)
	}
	if cfg.Cache.SearchTTL != 2*time.Minute {
		t.Errorf("search ttl: %v", cfg.Cache.SearchTTL)
	}
	if cfg.Retry.MaxRetries != 4 || cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("retry: %+v", cfg.Retry)
	}
	if cfg.Webhook.Secrets["greenhouse"] != "hunter2" {
		t.Error("env var not expanded into webhook secret")
	}
	if cfg.Webhook.Tolerance != 2*time.Minute {
		t.Errorf("tolerance: %v", cfg.Webhook.Tolerance)
	}
	if cfg.Dedup.Lookback != 720*time.Hour {
		t.Errorf("lookback: %v", cfg.Dedup.Lookback)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Errorf("interval: %v", cfg.Scheduler.Interval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
sources:
  remotive: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("retry defaults: %+v", cfg.Retry)
	}
	if cfg.Retry.FailureThreshold != 5 || cfg.Retry.ResetTimeout != 30*time.Second {
		t.Errorf("breaker defaults: %+v", cfg.Retry)
	}
	if cfg.Dedup.Lookback != 30*24*time.Hour {
		t.Errorf("lookback default: %v", cfg.Dedup.Lookback)
	}
	if cfg.Scheduler.Interval != 30*time.Minute {
		t.Errorf("interval default: %v", cfg.Scheduler.Interval)
	}
	if cfg.Cache.Prefix != "jobsift" {
		t.Errorf("prefix default: %q", cfg.Cache.Prefix)
	}
	if err := cfg.Scoring.Weights.Validate(); err != nil {
		t.Errorf("default weights invalid: %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no sources", `store: {path: x.db}`},
		{"missing token", `
sources:
  greenhouse:
    - company: Acme
`},
		{"short interval", `
sources:
  remotive: true
scheduler:
  interval: 10s
`},
		{"webhook without secrets", `
sources:
  remotive: true
webhook:
  listen_addr: :8080
`},
		{"bad duration", `
sources:
  remotive: true
retry:
  base_delay: soon
`},
		{"bad weights", `
sources:
  remotive: true
scoring:
  weights:
    title: 0.9
    skills: 0.9
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSchedulerFilters(t *testing.T) {
	s := SchedulerConfig{Keywords: "go", Location: "nyc", Remote: true}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	f := s.Filters(now, 24*time.Hour)
	if f.Keywords != "go" || !f.Remote {
		t.Errorf("filters: %+v", f)
	}
	if !f.PostedSince.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("posted since: %v", f.PostedSince)
	}
}
