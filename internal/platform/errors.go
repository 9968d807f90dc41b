package platform

import (
	"errors"
	"fmt"
	"time"
)

// Code is a stable, machine-readable fault code shared by every adapter.
// Codes drive retry decisions: fatal and permanent codes are never retried,
// transient codes are retried by the command executor up to its budget.
type Code string

// Fatal codes. These indicate broken wiring, not a flaky device.
const (
	CodeAuthentication Code = "authentication"
	CodeConfiguration  Code = "configuration"
)

// Permanent codes. Retrying cannot help.
const (
	CodeDeviceNotFound         Code = "device_not_found"
	CodeCapabilityNotSupported Code = "capability_not_supported"
	CodeInvalidCommand         Code = "invalid_command"
)

// Transient codes. The executor retries these with backoff.
const (
	CodeDeviceOffline Code = "device_offline"
	CodeNetwork       Code = "network"
	CodeTimeout       Code = "timeout"
	CodeRateLimit     Code = "rate_limit"
)

// Derived codes.
const (
	// CodeCommandExecution wraps a failure that exhausted its retry budget.
	// Its retryability is derived from the wrapped fault's code.
	CodeCommandExecution Code = "command_execution"

	// CodeStateSync marks a soft failure keeping cached state fresh.
	CodeStateSync Code = "state_sync"
)

// Severity classifies how loudly a fault should be surfaced.
type Severity string

// Severity constants.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// codeDefaults fixes the severity and retryability of each code.
var codeDefaults = map[Code]struct {
	severity  Severity
	retryable bool
}{
	CodeAuthentication:         {SeverityHigh, false},
	CodeConfiguration:          {SeverityHigh, false},
	CodeDeviceNotFound:         {SeverityLow, false},
	CodeCapabilityNotSupported: {SeverityLow, false},
	CodeInvalidCommand:         {SeverityMedium, false},
	CodeDeviceOffline:          {SeverityMedium, true},
	CodeNetwork:                {SeverityMedium, true},
	CodeTimeout:                {SeverityMedium, true},
	CodeRateLimit:              {SeverityMedium, true},
	CodeCommandExecution:       {SeverityMedium, false},
	CodeStateSync:              {SeverityLow, true},
}

// Context carries the structured diagnostic fields of a fault, so callers
// can tell what happened without re-deriving it from logs.
type Context struct {
	DeviceID      string `json:"device_id,omitempty"`
	Platform      string `json:"platform,omitempty"`
	Command       string `json:"command,omitempty"`
	HTTPStatus    int    `json:"http_status,omitempty"`
	VendorCode    string `json:"vendor_code,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Error is the structured fault type produced by adapters and the
// platform registry. It satisfies the error interface and supports
// errors.Is/errors.As unwrapping of its cause.
type Error struct {
	Code       Code          `json:"code"`
	Message    string        `json:"message"`
	Severity   Severity      `json:"severity"`
	Retryable  bool          `json:"retryable"`
	Context    Context       `json:"context,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // rate_limit only

	cause error
}

// NewError creates an Error with severity and retryability derived
// from the code.
func NewError(code Code, message string) *Error {
	defaults := codeDefaults[code]
	return &Error{
		Code:      code,
		Message:   message,
		Severity:  defaults.severity,
		Retryable: defaults.retryable,
	}
}

// Errorf creates an Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("platform: %s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("platform: %s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error and returns e for chaining.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithDevice records the device and platform the fault relates to.
func (e *Error) WithDevice(deviceID, platform string) *Error {
	e.Context.DeviceID = deviceID
	e.Context.Platform = platform
	return e
}

// WithCommand records the command verb being attempted.
func (e *Error) WithCommand(command string) *Error {
	e.Context.Command = command
	return e
}

// WithHTTPStatus records the vendor API status code behind the fault.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.Context.HTTPStatus = status
	return e
}

// WithVendorCode records the platform-native error code.
func (e *Error) WithVendorCode(code string) *Error {
	e.Context.VendorCode = code
	return e
}

// WithRetryAfter records a server-provided retry hint.
// Only meaningful for CodeRateLimit.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// RateLimited creates a rate-limit fault carrying the server's
// retry-after hint.
func RateLimited(retryAfter time.Duration) *Error {
	return NewError(CodeRateLimit, "vendor API rate limit exceeded").WithRetryAfter(retryAfter)
}

// NotFound creates a device-not-found fault for the given id.
func NotFound(deviceID string) *Error {
	e := Errorf(CodeDeviceNotFound, "device %q not found", deviceID)
	e.Context.DeviceID = deviceID
	return e
}

// WrapExhausted wraps the last fault of an exhausted retry budget.
// The wrapper's retryability is derived from the wrapped fault's code so
// callers one level up can still decide whether re-submission makes sense.
func WrapExhausted(cause error, attempts int, correlationID string) *Error {
	e := Errorf(CodeCommandExecution, "command failed after %d attempts", attempts).WithCause(cause)
	e.Context.Attempts = attempts
	e.Context.CorrelationID = correlationID

	if inner, ok := AsError(cause); ok {
		e.Retryable = inner.Retryable
		e.Context.DeviceID = inner.Context.DeviceID
		e.Context.Platform = inner.Context.Platform
	}
	return e
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the fault code of err, or "" for non-platform errors.
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the executor may retry after err.
// Errors outside the platform taxonomy are never retried.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// RetryAfterOf returns the server-provided retry hint of err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	if e, ok := AsError(err); ok && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}
