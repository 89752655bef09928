// Package scheduler drives the periodic ingest cycle: pull from every
// source, resolve duplicates against the stored candidate window, score
// the survivors, and persist.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobsift/jobsift/internal/aggregate"
	"github.com/jobsift/jobsift/internal/dedup"
	"github.com/jobsift/jobsift/internal/model"
	"github.com/jobsift/jobsift/internal/score"
)

// FilterFunc builds the search filters for one cycle from the cycle's
// start time.
type FilterFunc func(now time.Time) model.SearchFilters

// MatchFunc is invoked for every newly created posting with its score.
// Duplicates and updates never trigger it.
type MatchFunc func(posting model.UnifiedJobPosting, score model.JobScore)

// CycleStats summarizes one completed ingest cycle.
type CycleStats struct {
	Fetched    int
	Created    int
	Updated    int
	Linked     int
	Errors     int
	SourceErrs int
	Elapsed    time.Duration
}

// Scheduler owns the ingest loop.
type Scheduler struct {
	aggregator *aggregate.Aggregator
	deduper    *dedup.Engine
	scorer     *score.Engine
	store      model.PostingStore
	profile    model.UserPreferenceProfile
	filters    FilterFunc
	onMatch    MatchFunc
	interval   time.Duration
	logger     *slog.Logger
}

// New creates a scheduler. interval must be positive; filters supplies
// the per-cycle search window.
func New(aggregator *aggregate.Aggregator, deduper *dedup.Engine, scorer *score.Engine,
	store model.PostingStore, profile model.UserPreferenceProfile,
	filters FilterFunc, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		deduper:    deduper,
		scorer:     scorer,
		store:      store,
		profile:    profile,
		filters:    filters,
		interval:   interval,
		logger:     logger,
	}
}

// OnMatch sets the callback fired for each newly created posting.
func (s *Scheduler) OnMatch(fn MatchFunc) {
	s.onMatch = fn
}

// Run executes one cycle immediately, then one per interval until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	stats := s.RunOnce(ctx)
	s.logger.Info("ingest cycle complete",
		"fetched", stats.Fetched,
		"created", stats.Created,
		"updated", stats.Updated,
		"linked", stats.Linked,
		"errors", stats.Errors,
		"source_errors", stats.SourceErrs,
		"elapsed", stats.Elapsed,
	)
}

// RunOnce performs a single ingest cycle and returns its stats.
func (s *Scheduler) RunOnce(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats

	result := s.aggregator.Search(ctx, s.filters(start))
	stats.Fetched = len(result.Postings)
	stats.SourceErrs = len(result.Failures)
	for source, err := range result.Failures {
		s.logger.Warn("source failed this cycle", "source", source, "error", err)
	}

	for _, posting := range result.Postings {
		if err := s.ingest(posting, &stats); err != nil {
			stats.Errors++
			s.logger.Error("ingest failed", "posting", posting.ID, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	stats.Elapsed = time.Since(start)
	return stats
}

// Ingest resolves and persists a single posting outside the periodic
// cycle, e.g. one announced by a webhook.
func (s *Scheduler) Ingest(posting model.UnifiedJobPosting) error {
	var stats CycleStats
	return s.ingest(posting, &stats)
}

// ingest resolves one posting against the candidate window and applies
// the resulting instruction.
func (s *Scheduler) ingest(posting model.UnifiedJobPosting, stats *CycleStats) error {
	now := time.Now()
	candidates, err := s.store.RecentByCompany(posting.Company.Name, now.Add(-s.deduper.Lookback()))
	if err != nil {
		return err
	}

	instr := s.deduper.Process(posting, candidates, now)
	if err := s.store.Apply(instr); err != nil {
		return err
	}

	switch instr.Action {
	case model.ActionCreate:
		stats.Created++
		jobScore := s.scorer.Score(instr.Posting, s.profile, now)
		s.logger.Debug("scored posting",
			"posting", instr.Posting.ID,
			"overall", jobScore.Overall,
		)
		if s.onMatch != nil {
			s.onMatch(instr.Posting, jobScore)
		}
	case model.ActionUpdate:
		stats.Updated++
	case model.ActionLink:
		stats.Linked++
	}
	return nil
}
