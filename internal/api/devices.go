package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/unify-home/unify-core/internal/device"
)

// handleListDevices returns registry devices, optionally filtered.
//
// Query parameters: room, capability, platform, online (true/false),
// name (substring). All filters are conjunctive.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var filter device.Filter

	q := r.URL.Query()
	if room := q.Get("room"); room != "" {
		filter.Room = &room
	}
	if capability := q.Get("capability"); capability != "" {
		c := device.Capability(capability)
		filter.Capability = &c
	}
	if p := q.Get("platform"); p != "" {
		plat := device.Platform(p)
		filter.Platform = &plat
	}
	if online := q.Get("online"); online != "" {
		v, err := strconv.ParseBool(online)
		if err != nil {
			writeBadRequest(w, "online must be true or false")
			return
		}
		filter.Online = &v
	}
	filter.Name = q.Get("name")

	devices := s.devices.Find(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by universal id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.devices.Get(id)
	if !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// resolveRequest is the request body for POST /devices/resolve.
type resolveRequest struct {
	Query string `json:"query"`
}

// handleResolveDevice resolves a free-form query ("kitchen light") to the
// best-matching device.
func (s *Server) handleResolveDevice(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeBadRequest(w, "query is required")
		return
	}

	match, err := s.devices.Resolve(req.Query)
	if err != nil {
		if errors.Is(err, device.ErrNoMatch) {
			writeNotFound(w, "no device matches query")
			return
		}
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// handleSyncDevices pulls device inventories from every registered
// platform adapter into the registry. Adapter failures degrade gracefully:
// devices from healthy platforms are synced and failures are reported
// alongside.
func (s *Server) handleSyncDevices(w http.ResponseWriter, r *http.Request) {
	devices, failures, err := s.platforms.ListAllDevices(r.Context())
	if err != nil {
		writeFault(w, err)
		return
	}

	added := 0
	for i := range devices {
		if _, exists := s.devices.Get(devices[i].ID); exists {
			continue
		}
		if err := s.devices.Add(&devices[i]); err != nil {
			s.logger.Warn("skipping device during sync", "device_id", devices[i].ID, "error", err)
			continue
		}
		added++
	}

	failed := make([]map[string]string, 0, len(failures))
	for _, f := range failures {
		failed = append(failed, map[string]string{
			"platform": string(f.Platform),
			"error":    f.Err.Error(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"discovered": len(devices),
		"added":      added,
		"failures":   failed,
	})
}

// handleDeviceStats returns registry aggregate statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.devices.GetStats())
}

// handleListRooms returns the rooms that currently contain devices.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.devices.Rooms()
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleGetDeviceState returns a device state snapshot. Reads go through
// the state cache; ?refresh=true bypasses it and forces a platform
// round trip.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.devices.Get(id); !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	var (
		state device.State
		err   error
	)
	switch {
	case refresh:
		state, err = s.platforms.RefreshDeviceState(r.Context(), id)
		if err == nil && s.cache != nil {
			s.cache.Put(id, state)
		}
	case s.cache != nil:
		state, err = s.cache.Get(r.Context(), id)
	default:
		state, err = s.platforms.GetDeviceState(r.Context(), id)
	}
	if err != nil {
		writeFault(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"state":     state,
	})
}
