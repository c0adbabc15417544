package buffer

import "time"

// Message is one application message captured from the broker together with
// the identity generated when it was routed into a buffer.
//
// Messages are immutable once created: nothing in this package modifies a
// stored Message, and eviction or an explicit clear is the only way one
// leaves a buffer. Callers receiving Messages from snapshots must treat the
// Payload slice as read-only.
type Message struct {
	ID         string
	Topic      string
	Payload    []byte
	QoS        byte
	Retained   bool
	ReceivedAt time.Time
}

// Size returns the number of bytes the message counts against a buffer
// budget. Only the payload is accounted.
func (m Message) Size() int64 {
	return int64(len(m.Payload))
}
