package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/unify-home/unify-core/internal/command"
	"github.com/unify-home/unify-core/internal/statecache"
)

// RecordCommand writes one settled command execution to the command_executions
// measurement. It satisfies the executor's Recorder hook.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Failed lookups of the device id keep their raw form so partial data is
// still queryable.
func (c *Client) RecordCommand(res command.Result) {
	if !c.IsConnected() {
		return
	}

	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}

	point := write.NewPoint(
		"command_executions",
		map[string]string{
			"device_id": res.DeviceID,
			"command":   res.Command,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"duration_ms":    float64(res.Duration) / float64(time.Millisecond),
			"retries":        res.Retries,
			"correlation_id": res.CorrelationID,
		},
		res.Timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceState writes a numeric slice of a device state snapshot.
//
// Only numeric and boolean values are exportable to a time series; the
// caller picks which state key to record.
//
// Example:
//
//	client.WriteDeviceState("zigbee:sensor-hall", "temperature", 21.5)
func (c *Client) WriteDeviceState(deviceID string, key string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"device_id": deviceID,
			"key":       key,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCacheStats writes a state cache metrics snapshot to the cache_stats
// measurement. Called periodically by the composition root.
func (c *Client) WriteCacheStats(snap statecache.MetricsSnapshot) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"cache_stats",
		map[string]string{},
		map[string]interface{}{
			"entries":            snap.Entries,
			"hits":               snap.Hits,
			"misses":             snap.Misses,
			"evictions":          snap.Evictions,
			"hit_rate":           snap.HitRate,
			"inflight_refreshes": snap.InflightRefreshes,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteExecutorStats writes an executor metrics snapshot to the
// executor_stats measurement.
func (c *Client) WriteExecutorStats(snap command.MetricsSnapshot) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"executor_stats",
		map[string]string{},
		map[string]interface{}{
			"executed":        snap.Executed,
			"succeeded":       snap.Succeeded,
			"failed":          snap.Failed,
			"retries":         snap.Retries,
			"mean_latency_ms": float64(snap.MeanLatency) / float64(time.Millisecond),
			"p95_latency_ms":  float64(snap.P95Latency) / float64(time.Millisecond),
			"p99_latency_ms":  float64(snap.P99Latency) / float64(time.Millisecond),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
