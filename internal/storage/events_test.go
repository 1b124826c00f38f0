package storage

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestTruncateMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		maxLen  int
		want    string
	}{
		{"short untouched", "blocked for 2s", 500, "blocked for 2s"},
		{"exact length untouched", "abcde", 5, "abcde"},
		{"truncated", "abcdef", 5, "abcde"},
		{"multibyte not split", "héllo wörld", 4, "héll"},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateMessage(tt.message, tt.maxLen); got != tt.want {
				t.Errorf("TruncateMessage(%q, %d) = %q, want %q", tt.message, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestTruncateMessage_LongPayload(t *testing.T) {
	long := strings.Repeat("x", MessagePreviewLength*2)
	got := TruncateMessage(long, MessagePreviewLength)
	if len([]rune(got)) != MessagePreviewLength {
		t.Errorf("length = %d, want %d", len([]rune(got)), MessagePreviewLength)
	}
}

func TestLogWriter_WriteAndClose(t *testing.T) {
	w := NewLogWriter(zap.NewNop())
	defer w.Close()

	// Must be non-blocking and tolerate sparse events.
	w.Write(&AlertEvent{
		ID:        "evt_1",
		Timestamp: time.Now(),
		Source:    "sampler",
		Kind:      "blocking_call",
		Severity:  "error",
		Message:   "event loop blocked",
	})
}
