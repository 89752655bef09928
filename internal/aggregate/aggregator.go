// Package aggregate fans search requests out across all configured
// sources and merges the results. One dead or slow source never blocks
// the others: each source runs its own pipeline with its own limiter
// and circuit breaker.
package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jobsift/jobsift/internal/model"
)

// Result is a merged search outcome. Failures maps each failed source
// to its error; callers always get the partial results that succeeded.
type Result struct {
	Postings  []model.UnifiedJobPosting
	PerSource map[model.Source]int
	Failures  map[model.Source]error
}

// Aggregator runs concurrent searches with bounded parallelism.
type Aggregator struct {
	sources     []model.SourceClient
	concurrency int
	logger      *slog.Logger
}

// NewAggregator creates an aggregator over the given source pipelines.
// concurrency bounds simultaneous source pulls (default 3).
func NewAggregator(sources []model.SourceClient, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Aggregator{
		sources:     sources,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Search queries every source concurrently and merges what succeeds.
// Cross-source ordering of the merged slice is not guaranteed.
func (a *Aggregator) Search(ctx context.Context, filters model.SearchFilters) Result {
	res := Result{
		PerSource: make(map[model.Source]int, len(a.sources)),
		Failures:  make(map[model.Source]error),
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, a.concurrency)
	)

	for _, src := range a.sources {
		wg.Add(1)
		go func(src model.SourceClient) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			postings, err := src.Search(ctx, filters)

			mu.Lock()
			defer mu.Unlock()
			res.PerSource[src.Source()] = len(postings)
			res.Postings = append(res.Postings, postings...)
			if err != nil {
				res.Failures[src.Source()] = err
				a.logger.Warn("source search failed",
					"source", src.Source(),
					"partial", len(postings),
					"error", err,
				)
			}
		}(src)
	}
	wg.Wait()

	a.logger.Info("aggregated search",
		"sources", len(a.sources),
		"postings", len(res.Postings),
		"failures", len(res.Failures),
	)
	return res
}

// Availability probes every source and reports which are healthy.
func (a *Aggregator) Availability(ctx context.Context) map[model.Source]bool {
	out := make(map[model.Source]bool, len(a.sources))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, src := range a.sources {
		wg.Add(1)
		go func(src model.SourceClient) {
			defer wg.Done()
			ok := src.IsAvailable(ctx)
			mu.Lock()
			out[src.Source()] = ok
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return out
}
