package util

import (
	"strconv"
	"time"
)

var timeLayouts = []string{time.RFC3339, time.RFC3339Nano}

// ParseTime accepts RFC3339 timestamps or unix seconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault returns def when s is empty or unparseable.
func ParseTimeDefault(s string, def time.Time) time.Time {
	t, ok := ParseTime(s)
	if !ok {
		return def
	}
	return t
}

// ParseIntDefault returns def when s is empty or not an integer.
func ParseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
