package webhook

import (
	"sync"
	"time"
)

type sample struct {
	latency time.Duration
	success bool
}

// rollingWindow keeps the last N samples for computing rolling
// averages without unbounded growth.
type rollingWindow struct {
	samples []sample
	next    int
	filled  bool
}

func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = 100
	}
	return &rollingWindow{samples: make([]sample, size)}
}

func (w *rollingWindow) add(s sample) {
	w.samples[w.next] = s
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

func (w *rollingWindow) snapshot() WindowStats {
	n := w.next
	if w.filled {
		n = len(w.samples)
	}
	if n == 0 {
		return WindowStats{}
	}
	var total time.Duration
	var ok int
	for i := 0; i < n; i++ {
		total += w.samples[i].latency
		if w.samples[i].success {
			ok++
		}
	}
	return WindowStats{
		Samples:     n,
		AvgLatency:  total / time.Duration(n),
		SuccessRate: float64(ok) / float64(n),
	}
}

// WindowStats summarizes a rolling window.
type WindowStats struct {
	Samples     int
	AvgLatency  time.Duration
	SuccessRate float64
}

// metrics tracks per-request and per-handler rolling stats.
type metrics struct {
	mu       sync.Mutex
	size     int
	requests *rollingWindow
	handlers map[string]*rollingWindow
}

func newMetrics(size int) *metrics {
	return &metrics{
		size:     size,
		requests: newRollingWindow(size),
		handlers: make(map[string]*rollingWindow),
	}
}

func (m *metrics) recordRequest(latency time.Duration, success bool) {
	m.mu.Lock()
	m.requests.add(sample{latency: latency, success: success})
	m.mu.Unlock()
}

func (m *metrics) recordHandler(name string, latency time.Duration, success bool) {
	m.mu.Lock()
	w, ok := m.handlers[name]
	if !ok {
		w = newRollingWindow(m.size)
		m.handlers[name] = w
	}
	w.add(sample{latency: latency, success: success})
	m.mu.Unlock()
}

// Stats is the processor's observable metric state.
type Stats struct {
	Requests WindowStats
	Handlers map[string]WindowStats
}

func (m *metrics) stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Stats{
		Requests: m.requests.snapshot(),
		Handlers: make(map[string]WindowStats, len(m.handlers)),
	}
	for name, w := range m.handlers {
		out.Handlers[name] = w.snapshot()
	}
	return out
}
