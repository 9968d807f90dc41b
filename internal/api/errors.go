package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/unify-home/unify-core/internal/platform"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeFault translates a platform fault into an HTTP error response.
// The fault code becomes the response code so clients can branch on it.
func writeFault(w http.ResponseWriter, err error) {
	fault, ok := platform.AsError(err)
	if !ok {
		writeInternalError(w, err.Error())
		return
	}

	status := statusForCode(fault.Code)
	if fault.Code == platform.CodeRateLimit && fault.RetryAfter > 0 {
		w.Header().Set("Retry-After", formatSeconds(fault.RetryAfter))
	}
	writeError(w, status, string(fault.Code), fault.Message)
}

// formatSeconds renders a duration as whole seconds for Retry-After.
func formatSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

// statusForCode maps the fault taxonomy onto HTTP statuses. Vendor-side
// failures surface as gateway errors: this server is a proxy for the
// platform that actually failed.
func statusForCode(code platform.Code) int {
	switch code {
	case platform.CodeDeviceNotFound:
		return http.StatusNotFound
	case platform.CodeInvalidCommand, platform.CodeCapabilityNotSupported:
		return http.StatusBadRequest
	case platform.CodeRateLimit:
		return http.StatusTooManyRequests
	case platform.CodeDeviceOffline:
		return http.StatusConflict
	case platform.CodeTimeout:
		return http.StatusGatewayTimeout
	case platform.CodeNetwork, platform.CodeAuthentication, platform.CodeStateSync:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
