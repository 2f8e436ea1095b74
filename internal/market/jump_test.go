package market

import (
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

func testJumpDetector() (*JumpDetector, *time.Time) {
	d := NewJumpDetector(JumpConfig{
		HistoryNum:    4,
		PollInterval:  time.Second,
		MaxAge:        time.Minute,
		SkewAllowance: 2 * time.Second,
	}, logger.Nop())
	now := time.Unix(1700000000, 0)
	d.nowFn = func() time.Time { return now }
	return d, &now
}

func fillRing(d *JumpDetector, now *time.Time, prices []float64) {
	for _, p := range prices {
		ts := float64(now.Unix())
		d.Record("BTCUSDT", p, &ts)
		*now = now.Add(time.Second)
	}
}

func pctPtr(v float64) *float64 { return &v }

func TestJumpRequiresFullRing(t *testing.T) {
	d, now := testJumpDetector()
	fillRing(d, now, []float64{100, 100, 100}) // 3 of 4

	if res := d.Check("BTCUSDT", pctPtr(0.001)); res.State != models.JumpNone {
		t.Fatalf("expected none on partial ring, got %v", res.State)
	}
}

func TestJumpRequiresThreshold(t *testing.T) {
	d, now := testJumpDetector()
	fillRing(d, now, []float64{100, 100, 100, 100})

	if res := d.Check("BTCUSDT", nil); res.State != models.JumpNone {
		t.Fatalf("expected none with nil threshold, got %v", res.State)
	}
}

func TestJumpUp(t *testing.T) {
	d, now := testJumpDetector()
	fillRing(d, now, []float64{100, 100, 100, 102})

	res := d.Check("BTCUSDT", pctPtr(0.01))
	if res.State != models.JumpUp {
		t.Fatalf("expected up, got %v", res.State)
	}
	if res.Change < 0.01 {
		t.Fatalf("unexpected change %f", res.Change)
	}
	if res.MinDelta <= 0 || res.MaxDelta < res.MinDelta {
		t.Fatalf("bad delta range [%f, %f]", res.MinDelta, res.MaxDelta)
	}
}

func TestJumpDown(t *testing.T) {
	d, now := testJumpDetector()
	fillRing(d, now, []float64{100, 100, 100, 97})

	if res := d.Check("BTCUSDT", pctPtr(0.01)); res.State != models.JumpDown {
		t.Fatalf("expected down, got %v", res.State)
	}
}

func TestJumpWatchedBelowThreshold(t *testing.T) {
	d, now := testJumpDetector()
	fillRing(d, now, []float64{100, 100, 100, 100.1})

	if res := d.Check("BTCUSDT", pctPtr(0.05)); res.State != models.JumpWatched {
		t.Fatalf("expected watched, got %v", res.State)
	}
}

func TestJumpStaleSamples(t *testing.T) {
	d, now := testJumpDetector()
	fillRing(d, now, []float64{100, 100, 100, 102})
	*now = now.Add(5 * time.Minute) // everything beyond max age

	if res := d.Check("BTCUSDT", pctPtr(0.01)); res.State != models.JumpNone {
		t.Fatalf("expected none on stale ring, got %v", res.State)
	}
}

func TestRecordNudgesReceiptTies(t *testing.T) {
	d, _ := testJumpDetector()
	for i := 0; i < 3; i++ {
		d.Record("BTCUSDT", 100, nil) // same frozen clock
	}
	ring := d.rings["BTCUSDT"]
	for i := 1; i < len(ring); i++ {
		if ring[i].receiptTs <= ring[i-1].receiptTs {
			t.Fatalf("receipt timestamps not strictly increasing: %v", ring)
		}
	}
}
