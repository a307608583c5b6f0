package session

import (
	"strconv"
	"testing"
	"time"
)

func TestParseBarTime(t *testing.T) {
	epoch := time.Date(2025, 3, 14, 9, 30, 0, 0, time.Local)
	tests := []struct {
		raw  string
		want time.Time
	}{
		{strconv.FormatInt(epoch.Unix(), 10), epoch},
		{"20250314 09:30:00", epoch},
		{"20250314  09:30:00", epoch},
		{"20250314 09:30:00 US/Eastern", epoch},
		{"20250314", time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local)},
	}
	for _, tt := range tests {
		got, err := ParseBarTime(tt.raw)
		if err != nil {
			t.Errorf("ParseBarTime(%q): %v", tt.raw, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseBarTime(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	for _, bad := range []string{"", "yesterday", "2025-03-14T09:30"} {
		if _, err := ParseBarTime(bad); err == nil {
			t.Errorf("ParseBarTime(%q) accepted", bad)
		}
	}
}
