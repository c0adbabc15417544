package engine

import "errors"

// Sentinel errors for buffer queries.
var (
	// ErrTopicNotFound is returned when no buffer exists for the topic.
	ErrTopicNotFound = errors.New("engine: topic not found")

	// ErrMessageNotFound is returned when the identity is not in the
	// topic's buffer, either evicted or never stored.
	ErrMessageNotFound = errors.New("engine: message not found")
)
