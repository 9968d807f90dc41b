package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidName) {
//	    // handle validation failure
//	}
var (
	// ErrInvalidDevice is returned when a nil device is passed to the registry.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDeviceID is returned when a universal device id is malformed.
	// Valid ids have the form "<platform>:<platform-local-id>".
	ErrInvalidDeviceID = errors.New("device: invalid id")

	// ErrUnknownPlatform is returned when an id names a platform outside the
	// registered platform set.
	ErrUnknownPlatform = errors.New("device: unknown platform")

	// ErrInvalidName is returned when a device name is empty.
	ErrInvalidName = errors.New("device: name is required")

	// ErrIDImmutable is returned when an update attempts to change a device id.
	ErrIDImmutable = errors.New("device: id is immutable")

	// ErrNoMatch is returned by Resolve when no candidate clears the
	// similarity threshold.
	ErrNoMatch = errors.New("device: no match")

	// ErrSnapshotCorrupt is returned when a registry snapshot cannot be decoded.
	ErrSnapshotCorrupt = errors.New("device: snapshot corrupt")
)
