// Package cache provides a two-tier key-value cache: a networked redis
// backend when configured, with an in-process TTL map as the
// always-available fallback. Backend failures degrade silently — Get
// returns a miss, never an error.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Backend is the networked tier. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// Stats are the manager's observability counters. HitRate is computed
// lazily from hits and misses.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	HitRate float64
}

// Options configures a Manager.
type Options struct {
	// Backend is the networked tier; nil means in-process only.
	Backend Backend
	// Prefix namespaces every key so concurrent consumers of a shared
	// backend never collide.
	Prefix string
	// MaxBytes is the soft ceiling for the in-process tier.
	MaxBytes int64
	// SweepInterval is how often expired in-process entries are purged.
	SweepInterval time.Duration
}

// Manager is the two-tier cache.
type Manager struct {
	backend Backend
	local   *memoryCache
	prefix  string
	logger  *slog.Logger

	mu      sync.Mutex
	hits    int64
	misses  int64
	sets    int64
	deletes int64
}

// NewManager builds a cache manager. With a nil backend everything runs
// on the in-process tier.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		backend: opts.Backend,
		local:   newMemoryCache(opts.MaxBytes, opts.SweepInterval),
		prefix:  opts.Prefix,
		logger:  logger,
	}
}

// Close stops the in-process sweeper.
func (m *Manager) Close() {
	m.local.close()
}

func (m *Manager) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

// Get returns the cached value for key. Any backend failure counts as a
// fallback lookup; a miss is reported as ok=false, never an error.
func (m *Manager) Get(ctx context.Context, key string) (string, bool) {
	k := m.key(key)

	if m.backend != nil {
		value, ok, err := m.backend.Get(ctx, k)
		if err == nil {
			if ok {
				m.count(func() { m.hits++ })
				return value, true
			}
		} else {
			m.logger.Debug("cache backend get failed, using fallback", "key", key, "error", err)
		}
	}

	if value, ok := m.local.get(k); ok {
		m.count(func() { m.hits++ })
		return value, true
	}
	m.count(func() { m.misses++ })
	return "", false
}

// Set writes through to both tiers. Backend errors are swallowed; the
// in-process tier always has the value.
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) {
	k := m.key(key)
	m.local.set(k, value, ttl)
	if m.backend != nil {
		if err := m.backend.Set(ctx, k, value, ttl); err != nil {
			m.logger.Debug("cache backend set failed", "key", key, "error", err)
		}
	}
	m.count(func() { m.sets++ })
}

// Delete removes key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) {
	k := m.key(key)
	m.local.delete(k)
	if m.backend != nil {
		if err := m.backend.Delete(ctx, k); err != nil {
			m.logger.Debug("cache backend delete failed", "key", key, "error", err)
		}
	}
	m.count(func() { m.deletes++ })
}

// Increment atomically adds delta to the counter at key, creating it
// with the given TTL when absent, and returns the new value. During a
// backend outage the fallback counter is best-effort: counts restart
// rather than surfacing an error.
func (m *Manager) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) int64 {
	k := m.key(key)
	if m.backend != nil {
		n, err := m.backend.Increment(ctx, k, delta, ttl)
		if err == nil {
			return n
		}
		m.logger.Debug("cache backend increment failed, using fallback", "key", key, "error", err)
	}
	return m.local.increment(k, delta, ttl)
}

func (m *Manager) count(fn func()) {
	m.mu.Lock()
	fn()
	m.mu.Unlock()
}

// Stats returns a snapshot of the counters with the hit rate computed
// on demand.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Hits: m.hits, Misses: m.misses, Sets: m.sets, Deletes: m.deletes}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
