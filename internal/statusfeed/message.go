package statusfeed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"encwatch/core-go/internal/downtime"
)

type statusMessage struct {
	Device     string `json:"device_name"`
	RecordTime string `json:"record_time"`
	Label      string `json:"type"`
}

// ParseStatusMessage turns one MQTT payload into a raw record. The device
// name falls back to the topic's wildcard segment and a missing record_time
// takes the receipt instant now.
func ParseStatusMessage(topic string, payload []byte, now time.Time) (downtime.Record, error) {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return downtime.Record{}, fmt.Errorf("status payload is not valid JSON: %w", err)
	}

	device := strings.TrimSpace(msg.Device)
	if device == "" {
		device = DeviceFromTopic(topic)
	}
	if device == "" {
		return downtime.Record{}, fmt.Errorf("status message on %q names no device", topic)
	}

	label := strings.TrimSpace(msg.Label)
	if label == "" {
		return downtime.Record{}, fmt.Errorf("status message from %q has no type", device)
	}

	recordTime := strings.TrimSpace(msg.RecordTime)
	if recordTime == "" {
		recordTime = now.UTC().Format("02-01-2006 15:04:05")
	}

	return downtime.Record{
		Device: device,
		Time:   recordTime,
		Label:  label,
	}, nil
}

// DeviceFromTopic extracts the device segment from encwatch/<device>/status.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[0] == "encwatch" && parts[2] == "status" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
