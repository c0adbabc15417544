package mqtt

import "time"

// State describes the connection lifecycle position.
type State int

const (
	// StateDisconnected means no broker session exists and none is being
	// attempted.
	StateDisconnected State = iota

	// StateConnecting means an attempt or retry cycle is in flight.
	StateConnecting

	// StateConnected means a session is established and the full topic
	// space subscription is active.
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateChange is delivered to the state callback on every transition.
//
// Err carries the triggering failure when one exists. Status is a short
// operator-facing description ("connecting to host:1883", "reconnect attempt
// 3 in 15s"). UserMessage, when non-empty, is suitable for direct display to
// an end user and is always set on terminal failures.
type StateChange struct {
	Connected   bool
	State       State
	Err         error
	Status      string
	UserMessage string
}

// Inbound is a PUBLISH received from the broker.
//
// Retain reports the effective retained flag: because the subscription is
// made with Retain As Published, it is true both for messages replayed from
// the broker's retained store and for live messages published with the
// retain bit set.
type Inbound struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	ReceivedAt time.Time
}
