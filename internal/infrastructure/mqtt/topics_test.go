package mqtt

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"simple", "sensor/temperature", false},
		{"single level", "status", false},
		{"leading slash", "/zigbee2mqtt/bridge", false},
		{"trailing slash", "sensor/", false},
		{"unicode", "büro/temperatur", false},
		{"empty", "", true},
		{"single level wildcard", "sensor/+/temperature", true},
		{"multi level wildcard", "sensor/#", true},
		{"bare hash", "#", true},
		{"embedded nul", "sensor\x00temp", true},
		{"invalid utf8", string([]byte{0xff, 0xfe, 0xfd}), true},
		{"over length limit", strings.Repeat("a", maxTopicLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("ValidateTopic(%q) error = %v, want ErrInvalidTopic", tt.topic, err)
			}
		})
	}
}
