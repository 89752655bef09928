package cache

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// memoryEntry carries the insertion timestamp and TTL used for lazy
// expiry and oldest-first eviction.
type memoryEntry struct {
	value    string
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && !now.Before(e.storedAt.Add(e.ttl))
}

// memoryCache is the always-available in-process tier: a bounded map
// with TTL entries, a periodic sweep, and a soft byte ceiling that
// triggers oldest-first eviction down to ~80% of the ceiling.
type memoryCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	bytes    int64
	maxBytes int64

	stop     chan struct{}
	stopOnce sync.Once
}

func newMemoryCache(maxBytes int64, sweepEvery time.Duration) *memoryCache {
	if maxBytes <= 0 {
		maxBytes = 64 << 20 // 64 MiB
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	m := &memoryCache{
		entries:  make(map[string]memoryEntry),
		maxBytes: maxBytes,
		stop:     make(chan struct{}),
	}
	go m.sweepLoop(sweepEvery)
	return m
}

func (m *memoryCache) close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func entrySize(key string, e memoryEntry) int64 {
	return int64(len(key) + len(e.value))
}

func (m *memoryCache) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	// Lazy eviction on read.
	if e.expired(time.Now()) {
		m.deleteLocked(key, e)
		return "", false
	}
	return e.value, true
}

func (m *memoryCache) set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[key]; ok {
		m.bytes -= entrySize(key, old)
	}
	e := memoryEntry{value: value, storedAt: time.Now(), ttl: ttl}
	m.entries[key] = e
	m.bytes += entrySize(key, e)

	if m.bytes > m.maxBytes {
		m.evictLocked()
	}
}

func (m *memoryCache) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.deleteLocked(key, e)
	}
}

func (m *memoryCache) increment(key string, delta int64, ttl time.Duration) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var current int64
	if e, ok := m.entries[key]; ok && !e.expired(now) {
		current = parseInt(e.value)
		m.bytes -= entrySize(key, e)
	}
	current += delta
	e := memoryEntry{value: formatInt(current), storedAt: now, ttl: ttl}
	m.entries[key] = e
	m.bytes += entrySize(key, e)
	return current
}

func (m *memoryCache) deleteLocked(key string, e memoryEntry) {
	m.bytes -= entrySize(key, e)
	delete(m.entries, key)
}

// evictLocked removes oldest entries until usage drops to 80% of the
// ceiling. Caller holds m.mu.
func (m *memoryCache) evictLocked() {
	target := m.maxBytes * 8 / 10

	type aged struct {
		key      string
		storedAt time.Time
	}
	order := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		order = append(order, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].storedAt.Before(order[j].storedAt)
	})

	for _, a := range order {
		if m.bytes <= target {
			return
		}
		m.deleteLocked(a.key, m.entries[a.key])
	}
}

func (m *memoryCache) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *memoryCache) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.expired(now) {
			m.deleteLocked(k, e)
		}
	}
}

func (m *memoryCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
