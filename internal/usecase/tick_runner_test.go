package usecase

import (
	"context"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/ledger"
	"TradePulse/internal/market"
	"TradePulse/internal/strategy"
	"TradePulse/pkg/logger"
)

type fakeFeed struct {
	price *float64
	exTs  *float64
	bar   *models.Candle
}

func (f *fakeFeed) Connect(context.Context) error            { return nil }
func (f *fakeFeed) Subscribe(context.Context, []string) error { return nil }
func (f *fakeFeed) Price(string) *float64                    { return f.price }
func (f *fakeFeed) LastExchangeTs(string) *float64           { return f.exTs }
func (f *fakeFeed) Close() error                             { return nil }

func (f *fakeFeed) LastConfirmedBar(string) *models.Candle {
	bar := f.bar
	f.bar = nil
	return bar
}

type fakeExecutor struct {
	cooldown bool
	actions  []models.TradeAction
}

func (e *fakeExecutor) InCooldown(string) bool { return e.cooldown }

func (e *fakeExecutor) Execute(_ context.Context, a models.TradeAction) error {
	e.actions = append(e.actions, a)
	return nil
}

func testRunner(feed *fakeFeed, exec *fakeExecutor) (*TickRunner, *market.CandleEngine, *market.IndicatorEngine) {
	log := logger.Nop()
	candles := market.NewCandleEngine(100, log)
	indicator := market.NewIndicatorEngine(market.IndicatorConfig{
		Window:           3,
		MinThreshold:     0.001,
		MaxThreshold:     0.05,
		TargetCross:      1,
		CrossGapBars:     0,
		QuantizeDecimals: 4,
		MomentumFraction: 0.2,
	}, log)
	jump := market.NewJumpDetector(market.JumpConfig{
		HistoryNum:    4,
		PollInterval:  time.Second,
		MaxAge:        time.Minute,
		SkewAllowance: 2 * time.Second,
	}, log)
	strat := strategy.NewEngine(strategy.Params{
		MaxOpen:          4,
		WatchWindow:      15 * time.Minute,
		ReentryCooldown:  10 * time.Minute,
		TimeLimit:        24 * time.Hour,
		NearWindow:       time.Hour,
		ScaleOutCooldown: 10 * time.Minute,
		RiskControlPct:   0.003,
	}, log)

	r := NewTickRunner(feed, candles, indicator, jump, strat, exec,
		ledger.NewLotsIndex(), ledger.NewOpenSignalsIndex(), nil, 0, log)
	return r, candles, indicator
}

func seedIndicator(candles *market.CandleEngine, indicator *market.IndicatorEngine, symbol string) {
	for i := int64(0); i < 5; i++ {
		candles.ApplyConfirmed(symbol, models.Candle{
			Minute: 28333330 + i, Open: 100, High: 100, Low: 100, Close: 100,
		})
	}
	indicator.ComputeAll(symbol, candles.Candles(symbol))
}

func pricePtr(v float64) *float64 { return &v }

func TestRunOnceSkipsWithoutPrice(t *testing.T) {
	feed := &fakeFeed{}
	exec := &fakeExecutor{}
	r, candles, _ := testRunner(feed, exec)

	r.RunOnce(context.Background(), "BTCUSDT")
	if len(exec.actions) != 0 {
		t.Fatalf("actions executed without a price: %+v", exec.actions)
	}
	if len(candles.Candles("BTCUSDT")) != 0 {
		t.Fatalf("candle accumulated without a price")
	}
}

func TestRunOnceSkipsInCooldown(t *testing.T) {
	feed := &fakeFeed{price: pricePtr(95)}
	exec := &fakeExecutor{cooldown: true}
	r, candles, indicator := testRunner(feed, exec)
	seedIndicator(candles, indicator, "BTCUSDT")

	r.RunOnce(context.Background(), "BTCUSDT")
	if len(exec.actions) != 0 {
		t.Fatalf("actions executed inside cooldown: %+v", exec.actions)
	}
}

func TestRunOnceEvaluatesAndExecutes(t *testing.T) {
	feed := &fakeFeed{price: pricePtr(95)} // well below the MA band at 100
	exec := &fakeExecutor{}
	r, candles, indicator := testRunner(feed, exec)
	seedIndicator(candles, indicator, "BTCUSDT")

	r.RunOnce(context.Background(), "BTCUSDT")
	if len(exec.actions) != 1 {
		t.Fatalf("expected one executed action, got %+v", exec.actions)
	}
	a := exec.actions[0]
	if a.Kind != models.ActionEntry || a.Mode != models.ModeInit || a.Side != models.SideLong {
		t.Fatalf("unexpected action %+v", a)
	}
}

func TestRunOnceAccumulatesCandle(t *testing.T) {
	ts := 1700000000.0
	feed := &fakeFeed{price: pricePtr(100), exTs: &ts}
	exec := &fakeExecutor{}
	r, candles, _ := testRunner(feed, exec)

	r.RunOnce(context.Background(), "BTCUSDT")
	bars := candles.Candles("BTCUSDT")
	if len(bars) != 1 || bars[0].Close != 100 {
		t.Fatalf("tick not accumulated into candles: %+v", bars)
	}
}
