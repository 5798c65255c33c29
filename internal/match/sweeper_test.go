package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextWake(t *testing.T) {
	day := func(hour, minute, second int) time.Time {
		return time.Date(2026, time.March, 14, hour, minute, second, 0, time.UTC)
	}

	tests := []struct {
		name     string
		now      time.Time
		interval time.Duration
		expected time.Duration
	}{
		{"midnight", day(0, 0, 0), time.Hour, time.Hour},
		{"just past a boundary", day(9, 0, 1), time.Hour, 59*time.Minute + 59*time.Second},
		{"just before a boundary", day(9, 59, 59), time.Hour, time.Second},
		{"odd interval anchors to midnight", day(1, 0, 0), 45 * time.Minute, 30 * time.Minute},
		{"long interval", day(13, 0, 0), 6 * time.Hour, 5 * time.Hour},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, NextWake(test.now, test.interval))
		})
	}
}

func TestNextWakeAlwaysPositive(t *testing.T) {
	now := time.Date(2026, time.March, 14, 23, 59, 59, 999999999, time.UTC)
	wake := NextWake(now, 30*time.Minute)
	assert.Positive(t, wake)
	assert.LessOrEqual(t, wake, 30*time.Minute)
}
