package utils

import (
	"fmt"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// WindowEndingNow returns a collection window of the given length ending at now.
func WindowEndingNow(length time.Duration, now time.Time) (time.Time, time.Time) {
	if length <= 0 {
		length = 15 * time.Minute
	}
	return now.Add(-length), now
}

// Clamp01 bounds a confidence or quality score to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
