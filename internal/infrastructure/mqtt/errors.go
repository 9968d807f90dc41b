package mqtt

import "errors"

// Sentinel errors for broker operations. Callers branch with errors.Is.
//
// The zigbee adapter maps ErrNotConnected and ErrTimeout onto retryable
// transport faults so the command executor backs off and tries again;
// the validation errors below are terminal.
var (
	// ErrNotConnected: the session to the broker is down. Operations
	// fail fast instead of queueing while auto-reconnect works.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed: the initial connect never completed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker-side publish failures and oversized
	// payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps broker-side subscribe failures and nil
	// handlers.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps broker-side unsubscribe failures.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS: QoS must be 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic: empty topic string.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout: the broker did not acknowledge within the deadline.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
