// ABOUTME: Unit tests for sync daemon mode
// ABOUTME: Tests interval parsing and relative time formatting
package cli

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name      string
		interval  string
		expected  time.Duration
		shouldErr bool
	}{
		{
			name:     "default 15 minutes",
			interval: "15m",
			expected: 15 * time.Minute,
		},
		{
			name:     "exactly 5 minutes",
			interval: "5m",
			expected: 5 * time.Minute,
		},
		{
			name:     "one hour",
			interval: "1h",
			expected: time.Hour,
		},
		{
			name:     "mixed units",
			interval: "1h30m",
			expected: 90 * time.Minute,
		},
		{
			name:      "below minimum",
			interval:  "4m59s",
			shouldErr: true,
		},
		{
			name:      "seconds only",
			interval:  "30s",
			shouldErr: true,
		},
		{
			name:      "missing unit",
			interval:  "15",
			shouldErr: true,
		},
		{
			name:      "empty string",
			interval:  "",
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInterval(tt.interval)

			if tt.shouldErr {
				if err == nil {
					t.Errorf("expected error for interval %q, got %s", tt.interval, got)
				}
				return
			}

			if err != nil {
				t.Errorf("expected interval to parse, got error: %v", err)
				return
			}
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFormatTimeSince(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{
			name:     "just now (30 seconds)",
			time:     now.Add(-30 * time.Second),
			expected: "just now",
		},
		{
			name:     "1 minute ago",
			time:     now.Add(-1 * time.Minute),
			expected: "1 minute ago",
		},
		{
			name:     "5 minutes ago",
			time:     now.Add(-5 * time.Minute),
			expected: "5 minutes ago",
		},
		{
			name:     "1 hour ago",
			time:     now.Add(-1 * time.Hour),
			expected: "1 hour ago",
		},
		{
			name:     "3 hours ago",
			time:     now.Add(-3 * time.Hour),
			expected: "3 hours ago",
		},
		{
			name:     "1 day ago",
			time:     now.Add(-24 * time.Hour),
			expected: "1 day ago",
		},
		{
			name:     "5 days ago",
			time:     now.Add(-5 * 24 * time.Hour),
			expected: "5 days ago",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTimeSince(tt.time)
			if result != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}
