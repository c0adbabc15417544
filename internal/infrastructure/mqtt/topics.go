package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FullTopicSpace is the subscription filter covering every topic the broker
// will route to this client.
const FullTopicSpace = "#"

// maxTopicLength is the MQTT v5 limit on topic name length in bytes.
const maxTopicLength = 65535

// ValidateTopic checks that a topic is usable in a PUBLISH packet.
//
// Publish topics must be non-empty UTF-8 without wildcard characters or
// embedded NUL. Wildcards are only meaningful in subscription filters; a
// broker receiving one in a topic name closes the connection.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: topic exceeds %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("%w: topic is not valid UTF-8", ErrInvalidTopic)
	}
	if strings.ContainsRune(topic, '\x00') {
		return fmt.Errorf("%w: topic contains NUL character", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards are not allowed in publish topics", ErrInvalidTopic)
	}
	return nil
}
