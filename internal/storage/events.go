package storage

import "time"

// EventWriter is the interface for persisting runtime-safety alerts.
// Write() must NEVER block the caller: alerts fire from the monitored loop.
type EventWriter interface {
	Write(event *AlertEvent)
	Close()
}

// AlertEvent is one runtime-safety finding to be persisted: a blocking
// episode, a memory alert, or a context-leak sighting.
type AlertEvent struct {
	ID          string
	Timestamp   time.Time
	Source      string // "sampler", "memwatch", "sandbox"
	Kind        string
	Severity    string
	Symbol      string
	Message     string
	DurationMs  float64
	MemoryBytes uint64
	Metadata    map[string]string
}

// MessagePreviewLength is the max chars stored in the message column.
const MessagePreviewLength = 500

// TruncateMessage returns the first maxLen runes of a message. It never
// splits a multi-byte UTF-8 character.
func TruncateMessage(message string, maxLen int) string {
	runes := []rune(message)
	if len(runes) <= maxLen {
		return message
	}
	return string(runes[:maxLen])
}
