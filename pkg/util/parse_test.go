package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeAcceptsRFC3339(t *testing.T) {
	want := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	got, ok := ParseTime("2025-06-01T12:30:00Z")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseTimeAcceptsUnixSeconds(t *testing.T) {
	sec := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(sec, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != sec {
		t.Fatalf("got unix %d want %d", got.Unix(), sec)
	}
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	if _, ok := ParseTime("not-a-time"); ok {
		t.Fatalf("expected not ok")
	}
	if _, ok := ParseTime(""); ok {
		t.Fatalf("expected not ok for empty input")
	}
}

func TestParseTimeDefaultFallsBack(t *testing.T) {
	def := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := ParseTimeDefault("", def); !got.Equal(def) {
		t.Fatalf("expected default, got %v", got)
	}
	if got := ParseTimeDefault("2025-06-02T00:00:00Z", def); got.Equal(def) {
		t.Fatalf("expected parsed value, got default")
	}
}

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("42", 7); got != 42 {
		t.Fatalf("got %d want 42", got)
	}
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("got %d want 7", got)
	}
	if got := ParseIntDefault("4x", 7); got != 7 {
		t.Fatalf("got %d want 7", got)
	}
}
