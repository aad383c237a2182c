package cmd

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{10 << 20, "10.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.size); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestFormatTimeSince(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-90 * time.Second), "1 minute ago"},
		{now.Add(-5 * time.Hour), "5 hours ago"},
		{now.Add(-3 * hoursPerDay * time.Hour), "3 days ago"},
		{now.Add(-14 * hoursPerDay * time.Hour), "2 weeks ago"},
		{now.Add(-65 * hoursPerDay * time.Hour), "2 months ago"},
	}

	for _, tt := range tests {
		if got := formatTimeSince(tt.at); got != tt.want {
			t.Errorf("formatTimeSince(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
