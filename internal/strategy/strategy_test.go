package strategy

import (
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

func testParams() Params {
	return Params{
		MaxOpen:          4,
		EasingFraction:   0,
		WatchWindow:      15 * time.Minute,
		ReentryCooldown:  10 * time.Minute,
		TimeLimit:        24 * time.Hour,
		NearWindow:       time.Hour,
		ScaleOutCooldown: 10 * time.Minute,
		RiskControlPct:   0.003,
	}
}

func testEngine(p Params) *Engine { return NewEngine(p, logger.Nop()) }

func maPtr(v float64) *float64 { return &v }

func refCandle(v float64) *models.Candle {
	return &models.Candle{Open: v, High: v, Low: v, Close: v}
}

const nowMs = int64(1700000000000)

func itemAt(id string, agoMin int, price float64, tag string) OpenItem {
	return OpenItem{
		ID:         id,
		EntryTsMs:  nowMs - int64(agoMin)*60_000,
		EntryPrice: price,
		Tag:        tag,
	}
}

func TestInitEntryLong(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             98.5,
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.002,
		Reference:         refCandle(100),
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 {
		t.Fatalf("expected exactly one action, got %d", len(actions))
	}
	a := actions[0]
	if a.Kind != models.ActionEntry || a.Side != models.SideLong || a.Mode != models.ModeInit {
		t.Fatalf("unexpected action %+v", a)
	}
	if a.Reason == "" {
		t.Fatalf("entry carries no reason")
	}
}

func TestInitEntryNeedsMomentum(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             98.5,
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.10, // unreachable
		Reference:         refCandle(100),
	}
	if actions := e.Evaluate(in); len(actions) != 0 {
		t.Fatalf("entry fired without momentum: %+v", actions)
	}
}

func TestInit2Pyramid(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             98.9, // trigger 100*(1-0.01)=99
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.002,
		Reference:         refCandle(100),
		Long:              SideState{Items: []OpenItem{itemAt("a", 5, 100, models.ModeInit)}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeInit2 {
		t.Fatalf("expected INIT2, got %+v", actions)
	}
}

func TestPyramidRespectsWatchWindow(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             98.9,
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.10, // also blocks scale-in fallback
		Reference:         refCandle(100),
		Long:              SideState{Items: []OpenItem{itemAt("a", 20, 100, models.ModeInit)}}, // past 15m window
	}
	if actions := e.Evaluate(in); len(actions) != 0 {
		t.Fatalf("pyramid fired past watch window: %+v", actions)
	}
}

func TestScaleInAndOpenCap(t *testing.T) {
	p := testParams()
	e := testEngine(p)
	base := Input{
		Symbol:            "BTCUSDT",
		Price:             96.5,
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.02,
		MomentumThreshold: 0.004,
		Reference:         refCandle(100),
	}

	three := base
	three.Long = SideState{Items: []OpenItem{
		itemAt("a", 50, 100, models.ModeInit),
		itemAt("b", 40, 99, models.ModeInit2),
		itemAt("c", 20, 98, models.ModeScaleIn),
	}}
	actions := e.Evaluate(three)
	if len(actions) != 1 || actions[0].Mode != models.ModeScaleIn {
		t.Fatalf("expected SCALE_IN with 3 open, got %+v", actions)
	}

	four := base
	four.Long = SideState{Items: []OpenItem{
		itemAt("a", 50, 100, models.ModeInit),
		itemAt("b", 40, 99, models.ModeInit2),
		itemAt("c", 30, 98, models.ModeScaleIn),
		itemAt("d", 20, 97, models.ModeScaleIn),
	}}
	if actions := e.Evaluate(four); len(actions) != 0 {
		t.Fatalf("entry fired at the open cap: %+v", actions)
	}
}

func TestTimeLimitClosesOldestOnly(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             100, // at the MA, no price-driven branch applies
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.002,
		Reference:         refCandle(100),
		Long: SideState{Items: []OpenItem{
			itemAt("old", 25*60, 100, models.ModeInit), // 25h
			itemAt("new", 30, 99, models.ModeInit2),
		}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 {
		t.Fatalf("expected one exit, got %+v", actions)
	}
	a := actions[0]
	if a.Mode != models.ModeTimeLimit || a.Kind != models.ActionExit {
		t.Fatalf("expected TIME_LIMIT exit, got %+v", a)
	}
	if len(a.TargetLotIDs) != 1 || a.TargetLotIDs[0] != "old" {
		t.Fatalf("time limit must target the oldest only: %+v", a)
	}
	if len(a.TargetPos) != 1 || a.TargetPos[0] != 1 {
		t.Fatalf("expected 1-based position [1], got %v", a.TargetPos)
	}
}

func TestStopLossOnOldest(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             96.5, // oldest pnl -3.5% breaches 3h band 2.0x * 0.01
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.002,
		Reference:         refCandle(100),
		Long:              SideState{Items: []OpenItem{itemAt("a", 3*60, 100, models.ModeInit)}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeStopLoss {
		t.Fatalf("expected STOP_LOSS, got %+v", actions)
	}
}

func TestRiskControlFourClosesAll(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             99, // avg 98.5, +0.51% favorable
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.002,
		Reference:         refCandle(100),
		Long: SideState{Items: []OpenItem{
			itemAt("a", 50, 100, models.ModeInit),
			itemAt("b", 40, 99, models.ModeInit2),
			itemAt("c", 30, 98, models.ModeInit3),
			itemAt("d", 20, 97, models.ModeScaleIn),
		}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeRiskControl {
		t.Fatalf("expected RISK_CONTROL, got %+v", actions)
	}
	if len(actions[0].TargetLotIDs) != 4 {
		t.Fatalf("four open items must flatten entirely: %+v", actions[0])
	}
}

func TestNormalTouchClosesAll(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             101.5, // far band 101
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.10, // keep the short side out of the way
		Reference:         refCandle(100),
		Long: SideState{Items: []OpenItem{
			itemAt("a", 3*60, 100, models.ModeInit),
			itemAt("b", 2*60, 100, models.ModeInit2), // newest past near window
		}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeNormal {
		t.Fatalf("expected NORMAL, got %+v", actions)
	}
	if len(actions[0].TargetLotIDs) != 2 {
		t.Fatalf("normal touch must flatten the side: %+v", actions[0])
	}
}

func TestNearTouchClosesNewestOnly(t *testing.T) {
	p := testParams()
	p.EasingFraction = 0.1 // easing 0.001, near band 100.1
	e := testEngine(p)
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             100.2,
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.002,
		Reference:         refCandle(100),
		Long: SideState{Items: []OpenItem{
			itemAt("a", 50, 100, models.ModeInit),
			itemAt("b", 10, 99.8, models.ModeInit2), // inside near window
		}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeNearTouch {
		t.Fatalf("expected NEAR_TOUCH, got %+v", actions)
	}
	a := actions[0]
	if len(a.TargetLotIDs) != 1 || a.TargetLotIDs[0] != "b" || a.TargetPos[0] != 2 {
		t.Fatalf("near touch must target the newest only: %+v", a)
	}
}

func TestScaleOutRespectsCooldown(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             100.6, // past prior basis 99 and half band 100.5
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.10, // keep init-out quiet
		Reference:         refCandle(100),
		Long: SideState{Items: []OpenItem{
			itemAt("a", 4*60, 99, models.ModeInit),
			itemAt("b", 2*60, 98, models.ModeInit2),
		}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeScaleOut {
		t.Fatalf("expected SCALE_OUT, got %+v", actions)
	}
	if actions[0].TargetLotIDs[0] != "b" {
		t.Fatalf("scale-out must target the newest: %+v", actions[0])
	}

	in.Long.LastScaleOutMs = nowMs - 60_000 // inside cooldown
	actions = e.Evaluate(in)
	for _, a := range actions {
		if a.Mode == models.ModeScaleOut {
			t.Fatalf("scale-out fired inside cooldown: %+v", a)
		}
	}
}

func TestPendingItemsCountButCannotBeClosed(t *testing.T) {
	e := testEngine(testParams())
	in := Input{
		Symbol:            "BTCUSDT",
		Price:             101.5,
		NowMs:             nowMs,
		MA:                maPtr(100),
		Threshold:         0.01,
		MomentumThreshold: 0.10, // keep the short side out of the way
		Reference:         refCandle(100),
		Long: SideState{Items: []OpenItem{
			itemAt("a", 3*60, 100, models.ModeInit),
			{ID: "sig", EntryTsMs: nowMs - 2*60*60_000, EntryPrice: 100, Tag: models.ModeInit2, Pending: true},
		}},
	}

	actions := e.Evaluate(in)
	if len(actions) != 1 || actions[0].Mode != models.ModeNormal {
		t.Fatalf("expected NORMAL, got %+v", actions)
	}
	a := actions[0]
	if len(a.TargetLotIDs) != 1 || a.TargetLotIDs[0] != "a" {
		t.Fatalf("pending item must be excluded from exit targets: %+v", a)
	}
}

func TestMomentumTakesExtremum(t *testing.T) {
	ref := &models.Candle{Open: 100, High: 102, Low: 99, Close: 101}
	m := momentum(100, ref)
	// ratio vs high is the largest magnitude: 100/102-1
	want := 100.0/102 - 1
	if diff := m - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("momentum = %v, want %v", m, want)
	}
	if momentum(100, nil) != 0 {
		t.Fatalf("nil reference must yield zero momentum")
	}
}

func TestEvaluateSkipsWithoutIndicator(t *testing.T) {
	e := testEngine(testParams())
	if actions := e.Evaluate(Input{Symbol: "BTCUSDT", Price: 100, NowMs: nowMs}); actions != nil {
		t.Fatalf("expected no actions without an indicator state, got %+v", actions)
	}
}
