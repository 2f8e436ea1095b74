package market

import (
	"testing"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

func TestAccumulateSingleMinute(t *testing.T) {
	e := NewCandleEngine(10, logger.Nop())
	base := int64(1700000040)
	for _, p := range []float64{100, 100.5, 101, 99} {
		e.Accumulate("BTCUSDT", p, base)
	}

	bars := e.Candles("BTCUSDT")
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(bars))
	}
	b := bars[0]
	if b.Open != 100 || b.High != 101 || b.Low != 99 || b.Close != 99 {
		t.Fatalf("unexpected bar %+v", b)
	}
}

func TestAccumulateRollsMinute(t *testing.T) {
	e := NewCandleEngine(10, logger.Nop())
	e.Accumulate("BTCUSDT", 100, 1700000040)
	e.Accumulate("BTCUSDT", 102, 1700000100) // next minute

	bars := e.Candles("BTCUSDT")
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 100 || bars[1].Open != 102 {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestAccumulateIgnoresBadPrice(t *testing.T) {
	e := NewCandleEngine(10, logger.Nop())
	e.Accumulate("BTCUSDT", 0, 1700000040)
	e.Accumulate("BTCUSDT", -5, 1700000040)
	if got := e.Candles("BTCUSDT"); len(got) != 0 {
		t.Fatalf("expected no bars, got %d", len(got))
	}
}

func TestApplyConfirmedReplacesLocalBar(t *testing.T) {
	e := NewCandleEngine(10, logger.Nop())
	e.Accumulate("BTCUSDT", 100, 1700000040)
	minute := int64(1700000040) / 60

	confirmed := models.Candle{Minute: minute, Open: 99, High: 103, Low: 98, Close: 101}
	e.ApplyConfirmed("BTCUSDT", confirmed)
	e.ApplyConfirmed("BTCUSDT", confirmed) // second apply must not duplicate

	bars := e.Candles("BTCUSDT")
	if len(bars) != 1 {
		t.Fatalf("expected 1 bar after confirm, got %d", len(bars))
	}
	if bars[0] != confirmed {
		t.Fatalf("expected confirmed bar, got %+v", bars[0])
	}
}

func TestApplyConfirmedKeepsMinuteOrder(t *testing.T) {
	e := NewCandleEngine(10, logger.Nop())
	e.Accumulate("BTCUSDT", 100, 1700000100)
	// confirmed bar for the preceding minute arrives late
	e.ApplyConfirmed("BTCUSDT", models.Candle{Minute: 1700000040 / 60, Open: 99, High: 99, Low: 99, Close: 99})

	bars := e.Candles("BTCUSDT")
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Minute >= bars[1].Minute {
		t.Fatalf("bars out of order: %+v", bars)
	}
}

func TestCandleCapacityEvictsOldest(t *testing.T) {
	e := NewCandleEngine(3, logger.Nop())
	base := int64(1700000040)
	for i := 0; i < 5; i++ {
		e.Accumulate("BTCUSDT", 100+float64(i), base+int64(i*60))
	}
	bars := e.Candles("BTCUSDT")
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if bars[0].Open != 102 {
		t.Fatalf("expected oldest evicted, first bar %+v", bars[0])
	}
}
