package api

import (
	"net/http"
	"runtime"
	"time"
)

// serverStart is used to report process uptime.
var serverStart = time.Now()

// handleMetrics returns operational metrics for monitoring dashboards:
// executor throughput and latency, cache effectiveness, registry size,
// and process-level runtime numbers.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	payload := map[string]any{
		"uptime_seconds": int(time.Since(serverStart).Seconds()),
		"devices":        s.devices.GetStats(),
		"executor":       s.executor.Metrics(),
		"runtime": map[string]any{
			"goroutines":    runtime.NumGoroutine(),
			"heap_alloc_mb": float64(mem.HeapAlloc) / (1 << 20),
			"gc_cycles":     mem.NumGC,
			"go_version":    runtime.Version(),
		},
	}
	if s.cache != nil {
		payload["cache"] = s.cache.Metrics()
	}
	if s.hub != nil {
		payload["websocket_clients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, payload)
}
