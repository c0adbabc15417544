package mqtt

import "errors"

// Sentinel errors for broker operations.
var (
	// ErrNotConnected is returned when an operation requires an active
	// broker session but the manager is disconnected.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed is returned when dialing or the CONNECT/CONNACK
	// exchange fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrSubscribeFailed is returned when the full topic space subscription
	// is rejected after an otherwise successful connect.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPublishFailed is returned when the broker does not accept an
	// outbound publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic is returned when a publish topic is empty, contains
	// wildcard characters, or is otherwise malformed.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS is returned when a QoS level is outside 0-2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrPayloadTooLarge is returned when an outbound payload exceeds
	// maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrClosed is returned when the manager has been shut down.
	ErrClosed = errors.New("mqtt: manager closed")
)
