package ratelimit

import (
	"testing"
	"time"
)

func TestAllowBurstThenDeny(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := New()
	l.nowFn = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("client", 3, 1) {
			t.Fatalf("request %d should pass within burst", i)
		}
	}
	if l.Allow("client", 3, 1) {
		t.Fatalf("request beyond burst should be denied")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := New()
	l.nowFn = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		l.Allow("client", 2, 1)
	}
	if l.Allow("client", 2, 1) {
		t.Fatalf("bucket should be empty")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("client", 2, 1) {
		t.Fatalf("bucket should have refilled one token")
	}
	if l.Allow("client", 2, 1) {
		t.Fatalf("only one token should have refilled")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := New()
	l.nowFn = func() time.Time { return now }

	if !l.Allow("a", 1, 1) {
		t.Fatalf("first request for a should pass")
	}
	if l.Allow("a", 1, 1) {
		t.Fatalf("second request for a should be denied")
	}
	if !l.Allow("b", 1, 1) {
		t.Fatalf("b has its own bucket")
	}
}
