package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unify-home/unify-core/internal/command"
	"github.com/unify-home/unify-core/internal/device"
	"github.com/unify-home/unify-core/internal/platform"
)

// commandRequest is the request body for POST /devices/{id}/commands.
type commandRequest struct {
	Capability string         `json:"capability"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Component  string         `json:"component,omitempty"`

	// CorrelationID lets the caller thread its own request id through
	// the execution; empty means the executor mints one.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// commandResponse is the response body for command executions.
type commandResponse struct {
	Success       bool         `json:"success"`
	DeviceID      string       `json:"device_id"`
	Command       string       `json:"command"`
	State         device.State `json:"state,omitempty"`
	CorrelationID string       `json:"correlation_id"`
	Retries       int          `json:"retries"`
	DurationMS    int64        `json:"duration_ms"`
	Error         *Error       `json:"error,omitempty"`
}

// handleExecuteCommand executes a unified command against one device,
// with the executor's retry policy applied.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.devices.Get(id); !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Capability == "" || req.Command == "" {
		writeBadRequest(w, "capability and command are required")
		return
	}

	res := s.executor.ExecuteCorrelated(r.Context(), id, platform.Command{
		Capability: device.Capability(req.Capability),
		Command:    req.Command,
		Parameters: req.Parameters,
		Component:  req.Component,
	}, req.CorrelationID)

	if res.Success && s.cache != nil {
		s.cache.Put(id, res.State)
	}

	status := http.StatusOK
	if !res.Success {
		status = statusForResult(res)
	}
	writeJSON(w, status, toCommandResponse(res))
}

// batchRequest is the request body for POST /commands/batch.
type batchRequest struct {
	Commands []struct {
		DeviceID string `json:"device_id"`
		commandRequest
	} `json:"commands"`

	// Parallel fans commands out concurrently; parallelism optionally
	// bounds the in-flight window (0 = unbounded).
	Parallel    bool `json:"parallel,omitempty"`
	Parallelism int  `json:"parallelism,omitempty"`

	// ContinueOnError keeps dispatching after a failed command
	// (sequential mode only). Defaults to true.
	ContinueOnError *bool `json:"continue_on_error,omitempty"`
}

// handleExecuteBatch executes a set of commands, each with the full
// per-command retry policy, and returns per-command outcomes in request
// order.
func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Commands) == 0 {
		writeBadRequest(w, "commands must not be empty")
		return
	}

	reqs := make([]platform.CommandRequest, 0, len(req.Commands))
	for _, c := range req.Commands {
		if c.DeviceID == "" || c.Capability == "" || c.Command == "" {
			writeBadRequest(w, "each command requires device_id, capability, and command")
			return
		}
		reqs = append(reqs, platform.CommandRequest{
			DeviceID: c.DeviceID,
			Command: platform.Command{
				Capability: device.Capability(c.Capability),
				Command:    c.Command,
				Parameters: c.Parameters,
				Component:  c.Component,
			},
		})
	}

	cfg := command.DefaultBatchConfig()
	cfg.Parallel = req.Parallel
	cfg.Parallelism = req.Parallelism
	if req.ContinueOnError != nil {
		cfg.ContinueOnError = *req.ContinueOnError
	}

	results := s.executor.ExecuteBatch(r.Context(), reqs, cfg)

	out := make([]commandResponse, len(results))
	succeeded := 0
	for i, res := range results {
		out[i] = toCommandResponse(res)
		if res.Success {
			succeeded++
			if s.cache != nil {
				s.cache.Put(res.DeviceID, res.State)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":   out,
		"total":     len(out),
		"succeeded": succeeded,
		"failed":    len(out) - succeeded,
	})
}

// toCommandResponse converts an executor result to the wire shape.
func toCommandResponse(res command.Result) commandResponse {
	resp := commandResponse{
		Success:       res.Success,
		DeviceID:      res.DeviceID,
		Command:       res.Command,
		State:         res.State,
		CorrelationID: res.CorrelationID,
		Retries:       res.Retries,
		DurationMS:    res.Duration.Milliseconds(),
	}
	if res.Fault != nil {
		code := resultCode(res)
		if code == "" {
			code = ErrCodeInternal
		}
		resp.Error = &Error{
			Status:  statusForResult(res),
			Code:    string(code),
			Message: res.Fault.Error(),
		}
	}
	return resp
}

// resultCode digs out the most specific fault code of a failed execution.
// The executor wraps exhausted retries in a command_execution fault; the
// wrapped cause carries the code clients actually want to branch on.
func resultCode(res command.Result) platform.Code {
	fault, ok := platform.AsError(res.Fault)
	if !ok {
		return ""
	}
	if fault.Code == platform.CodeCommandExecution {
		if inner, ok := platform.AsError(fault.Unwrap()); ok {
			return inner.Code
		}
	}
	return fault.Code
}

// statusForResult maps a failed execution to an HTTP status.
func statusForResult(res command.Result) int {
	code := resultCode(res)
	if code == "" {
		return http.StatusInternalServerError
	}
	return statusForCode(code)
}
