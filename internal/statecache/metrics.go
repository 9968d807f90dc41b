package statecache

import "time"

// MetricsSnapshot is a point-in-time view of cache effectiveness.
type MetricsSnapshot struct {
	Entries       int     `json:"entries"`
	PeakEntries   int     `json:"peak_entries"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
	Invalidations uint64  `json:"invalidations"`
	HitRate       float64 `json:"hit_rate"`

	// AverageAge, OldestAge, and NewestAge describe the age spread of
	// cached entries, zero when the cache is empty.
	AverageAge time.Duration `json:"average_age"`
	OldestAge  time.Duration `json:"oldest_age"`
	NewestAge  time.Duration `json:"newest_age"`

	// InflightRefreshes counts refreshes currently running.
	InflightRefreshes int `json:"inflight_refreshes"`
}

// Metrics computes a snapshot. Entry ages are derived lazily here rather
// than tracked per access.
func (c *Cache) Metrics() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		Entries:           len(c.entries),
		PeakEntries:       c.peak,
		Hits:              c.hits,
		Misses:            c.misses,
		Evictions:         c.evictions,
		Invalidations:     c.invalidations,
		InflightRefreshes: len(c.inflight),
	}
	if total := c.hits + c.misses; total > 0 {
		snap.HitRate = float64(c.hits) / float64(total)
	}

	now := time.Now()
	var sum time.Duration
	for _, e := range c.entries {
		age := now.Sub(e.fetchedAt)
		sum += age
		if age > snap.OldestAge {
			snap.OldestAge = age
		}
		if snap.NewestAge == 0 || age < snap.NewestAge {
			snap.NewestAge = age
		}
	}
	if len(c.entries) > 0 {
		snap.AverageAge = sum / time.Duration(len(c.entries))
	}
	return snap
}
