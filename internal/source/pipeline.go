package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobsift/jobsift/internal/cache"
	"github.com/jobsift/jobsift/internal/model"
	"github.com/jobsift/jobsift/internal/ratelimit"
	"github.com/jobsift/jobsift/internal/retry"
)

// Pipeline decorates a raw SourceClient with the client substrate:
// token-bucket rate limiting, retry with circuit breaking keyed by the
// source name, and response caching. Every outbound call in the system
// goes through one of these.
type Pipeline struct {
	inner      model.SourceClient
	limiter    *ratelimit.Limiter
	exec       *retry.Executor
	cache      *cache.Manager
	maxRetries int
	searchTTL  time.Duration
	jobTTL     time.Duration
	logger     *slog.Logger
}

// PipelineOptions tunes a Pipeline.
type PipelineOptions struct {
	MaxRetries int
	SearchTTL  time.Duration
	JobTTL     time.Duration
}

// NewPipeline wraps inner with the shared substrate. All pipelines for
// one source share the limiter the registry hands out for that source.
func NewPipeline(inner model.SourceClient, limiters *ratelimit.Registry, exec *retry.Executor,
	cacheMgr *cache.Manager, opts PipelineOptions, logger *slog.Logger) *Pipeline {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.SearchTTL <= 0 {
		opts.SearchTTL = 5 * time.Minute
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = 15 * time.Minute
	}
	return &Pipeline{
		inner:      inner,
		limiter:    limiters.For(string(inner.Source())),
		exec:       exec,
		cache:      cacheMgr,
		maxRetries: opts.MaxRetries,
		searchTTL:  opts.SearchTTL,
		jobTTL:     opts.JobTTL,
		logger:     logger,
	}
}

func (p *Pipeline) Source() model.Source {
	return p.inner.Source()
}

// filtersKey derives a stable cache key from the search filters.
func filtersKey(source model.Source, f model.SearchFilters) string {
	raw := fmt.Sprintf("%s|%s|%t|%.0f|%s|%d",
		f.Keywords, f.Location, f.Remote, f.SalaryFloor, f.Category, f.PostedSince.Unix())
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("search:%s:%s", source, hex.EncodeToString(sum[:8]))
}

// Search returns cached results when fresh, otherwise acquires a rate
// limiter token and fetches through the retry executor. Unrecoverable
// failure yields the empty slice plus the error so aggregation can
// count it without aborting.
func (p *Pipeline) Search(ctx context.Context, filters model.SearchFilters) ([]model.UnifiedJobPosting, error) {
	key := filtersKey(p.inner.Source(), filters)
	if raw, ok := p.cache.Get(ctx, key); ok {
		var cached []model.UnifiedJobPosting
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		p.cache.Delete(ctx, key)
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		return []model.UnifiedJobPosting{}, fmt.Errorf("%s search: %w", p.inner.Source(), err)
	}

	var postings []model.UnifiedJobPosting
	err := p.exec.Execute(ctx, string(p.inner.Source()), p.maxRetries, func(ctx context.Context) error {
		var ferr error
		postings, ferr = p.inner.Search(ctx, filters)
		return ferr
	})
	if err != nil {
		return []model.UnifiedJobPosting{}, fmt.Errorf("%s search: %w", p.inner.Source(), err)
	}

	if raw, merr := json.Marshal(postings); merr == nil {
		p.cache.Set(ctx, key, string(raw), p.searchTTL)
	}
	return postings, nil
}

// GetJob fetches one posting with the same substrate applied.
func (p *Pipeline) GetJob(ctx context.Context, id string) (*model.UnifiedJobPosting, error) {
	key := fmt.Sprintf("job:%s", id)
	if raw, ok := p.cache.Get(ctx, key); ok {
		var cached model.UnifiedJobPosting
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
		p.cache.Delete(ctx, key)
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%s get job: %w", p.inner.Source(), err)
	}

	var posting *model.UnifiedJobPosting
	err := p.exec.Execute(ctx, string(p.inner.Source()), p.maxRetries, func(ctx context.Context) error {
		var ferr error
		posting, ferr = p.inner.GetJob(ctx, id)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("%s get job: %w", p.inner.Source(), err)
	}

	if posting != nil {
		if raw, merr := json.Marshal(posting); merr == nil {
			p.cache.Set(ctx, key, string(raw), p.jobTTL)
		}
	}
	return posting, nil
}

// IsAvailable delegates the probe directly: health checks bypass the
// retry layer so a wedged source reports unavailable quickly.
func (p *Pipeline) IsAvailable(ctx context.Context) bool {
	return p.inner.IsAvailable(ctx)
}
