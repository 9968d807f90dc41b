package command

import (
	"sort"
	"sync"
	"time"
)

// latencyWindow is the size of the rolling sample ring behind the
// latency quantiles.
const latencyWindow = 256

// MetricsSnapshot is a point-in-time view of executor activity.
type MetricsSnapshot struct {
	Executed  uint64 `json:"executed"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Retries   uint64 `json:"retries"`

	// Latency quantiles over the rolling window, zero until the first
	// execution settles.
	MeanLatency time.Duration `json:"mean_latency"`
	P95Latency  time.Duration `json:"p95_latency"`
	P99Latency  time.Duration `json:"p99_latency"`
}

// Metrics accumulates executor counters and a rolling latency window.
type Metrics struct {
	mu        sync.Mutex
	executed  uint64
	succeeded uint64
	failed    uint64
	retries   uint64

	samples [latencyWindow]time.Duration
	count   int // filled entries, up to latencyWindow
	next    int // ring write position
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// observe folds one settled result into the counters.
func (m *Metrics) observe(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executed++
	if res.Success {
		m.succeeded++
	} else {
		m.failed++
	}
	m.retries += uint64(res.Retries)

	m.samples[m.next] = res.Duration
	m.next = (m.next + 1) % latencyWindow
	if m.count < latencyWindow {
		m.count++
	}
}

// Snapshot computes the current counters and latency quantiles.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Executed:  m.executed,
		Succeeded: m.succeeded,
		Failed:    m.failed,
		Retries:   m.retries,
	}
	if m.count == 0 {
		return snap
	}

	window := make([]time.Duration, m.count)
	copy(window, m.samples[:m.count])
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	var sum time.Duration
	for _, d := range window {
		sum += d
	}
	snap.MeanLatency = sum / time.Duration(m.count)
	snap.P95Latency = window[quantileIndex(m.count, 0.95)]
	snap.P99Latency = window[quantileIndex(m.count, 0.99)]
	return snap
}

// Reset zeroes the counters and empties the latency window.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed, m.succeeded, m.failed, m.retries = 0, 0, 0, 0
	m.count, m.next = 0, 0
}

// quantileIndex maps a quantile to a sorted-slice index (nearest-rank).
func quantileIndex(n int, q float64) int {
	idx := int(float64(n)*q+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}
