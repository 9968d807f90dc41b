package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// platformInfo is one entry of the platform listing.
type platformInfo struct {
	Platform       string `json:"platform"`
	State          string `json:"state"`
	SupportsScenes bool   `json:"supports_scenes"`
}

// handleListPlatforms returns the registered platforms and their slot
// states.
func (s *Server) handleListPlatforms(w http.ResponseWriter, _ *http.Request) {
	platforms := s.platforms.Platforms()
	out := make([]platformInfo, 0, len(platforms))
	for _, p := range platforms {
		info := platformInfo{
			Platform: string(p),
			State:    string(s.platforms.SlotState(p)),
		}
		if a, ok := s.platforms.Adapter(p); ok {
			info.SupportsScenes = a.SupportsScenes()
		}
		out = append(out, info)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"platforms": out,
		"count":     len(out),
		"routes":    s.platforms.RouteCount(),
	})
}

// handlePlatformHealth runs a health check across every registered
// adapter and returns the aggregate report.
func (s *Server) handlePlatformHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.platforms.HealthCheck(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// platformParam resolves the {platform} URL parameter to an adapter.
func (s *Server) platformParam(w http.ResponseWriter, r *http.Request) (platform.Adapter, bool) {
	p := device.Platform(chi.URLParam(r, "platform"))
	a, ok := s.platforms.Adapter(p)
	if !ok {
		writeNotFound(w, "platform not registered: "+string(p))
		return nil, false
	}
	return a, true
}

// handleListScenes returns the vendor scenes of one platform.
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	a, ok := s.platformParam(w, r)
	if !ok {
		return
	}
	if !a.SupportsScenes() {
		writeBadRequest(w, "platform does not support scenes")
		return
	}

	scenes, err := a.ListScenes(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenes": scenes,
		"count":  len(scenes),
	})
}

// handleActivateScene recalls a vendor scene on its platform.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	a, ok := s.platformParam(w, r)
	if !ok {
		return
	}
	if !a.SupportsScenes() {
		writeBadRequest(w, "platform does not support scenes")
		return
	}

	sceneID := chi.URLParam(r, "sceneID")
	if err := a.ExecuteScene(r.Context(), sceneID); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activated": sceneID,
	})
}
