package serialmux

import "strings"

const (
	EventTypeTelemetry = "telemetry"
	EventTypeStatus    = "status"
	EventTypeLog       = "log"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a line from the rover and returns a simple event
// type token. Telemetry is any JSON object carrying total_time; other JSON
// objects are device status reports; lines starting with '#' are device
// log output.
func ClassifyPayload(payload string) string {
	p := strings.TrimSpace(payload)
	switch {
	case strings.HasPrefix(p, "{") && strings.Contains(p, `"total_time"`):
		return EventTypeTelemetry
	case strings.HasPrefix(p, "{"):
		return EventTypeStatus
	case strings.HasPrefix(p, "#"):
		return EventTypeLog
	}
	return EventTypeUnknown
}
