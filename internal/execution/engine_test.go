package execution

import (
	"context"
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/ledger"
	"TradePulse/pkg/logger"
)

type fakeBroker struct {
	orderID     string
	statuses    []models.FillStatus
	statusIdx   int
	submits     int
	statusCalls int
	reduceOnly  []bool
	qtys        []float64
	canceled    []string
}

func (b *fakeBroker) SubmitMarketOrder(_ context.Context, _ string, _ models.Side, qty float64, reduceOnly bool) (models.OrderResult, error) {
	b.submits++
	b.reduceOnly = append(b.reduceOnly, reduceOnly)
	b.qtys = append(b.qtys, qty)
	return models.OrderResult{OrderID: b.orderID}, nil
}

func (b *fakeBroker) OrderStatus(_ context.Context, _, _ string) (models.FillStatus, error) {
	b.statusCalls++
	if len(b.statuses) == 0 {
		return models.FillStatus{Status: "NEW"}, nil
	}
	s := b.statuses[b.statusIdx]
	if b.statusIdx < len(b.statuses)-1 {
		b.statusIdx++
	}
	return s, nil
}

func (b *fakeBroker) CancelOrder(_ context.Context, _, orderID string) error {
	b.canceled = append(b.canceled, orderID)
	return nil
}

func (b *fakeBroker) Positions(_ context.Context, _ string) ([]models.PositionSnapshot, error) {
	return nil, nil
}

type captureHistory struct{ trades []models.ExecutedTrade }

func (h *captureHistory) Append(_ context.Context, t models.ExecutedTrade) error {
	h.trades = append(h.trades, t)
	return nil
}

func (h *captureHistory) Query(context.Context, string, time.Time, time.Time, int) ([]models.ExecutedTrade, error) {
	return nil, nil
}

func (h *captureHistory) Close() error { return nil }

type captureEvents struct{ trades []models.ExecutedTrade }

func (p *captureEvents) PublishFill(_ context.Context, t models.ExecutedTrade) error {
	p.trades = append(p.trades, t)
	return nil
}

func (p *captureEvents) Close() error { return nil }

type harness struct {
	engine  *Engine
	broker  *fakeBroker
	store   *ledger.MemoryStore
	lots    *ledger.LotsIndex
	signals *ledger.OpenSignalsIndex
	history *captureHistory
	events  *captureEvents
}

func newHarness(broker *fakeBroker) *harness {
	h := &harness{
		broker:  broker,
		store:   ledger.NewMemoryStore(),
		lots:    ledger.NewLotsIndex(),
		signals: ledger.NewOpenSignalsIndex(),
		history: &captureHistory{},
		events:  &captureEvents{},
	}
	h.engine = NewEngine(Config{
		OrderQty:     0.001,
		FillChecks:   3,
		FillInterval: 0,
		TakerFee:     0.001,
		Cooldown:     time.Minute,
	}, Deps{
		Broker:  broker,
		Store:   h.store,
		Lots:    h.lots,
		Signals: h.signals,
		History: h.history,
		Events:  h.events,
	}, logger.Nop())
	return h
}

func TestEntryNoOrderIDStops(t *testing.T) {
	h := newHarness(&fakeBroker{orderID: ""})
	action := models.TradeAction{
		Kind: models.ActionEntry, Symbol: "BTCUSDT", Side: models.SideLong,
		Price: 100, Mode: models.ModeInit,
	}

	if err := h.engine.Execute(context.Background(), action); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if h.broker.statusCalls != 0 {
		t.Fatalf("fill wait attempted despite missing order id")
	}
	if lots, _ := h.store.LoadOpenLots(context.Background(), "BTCUSDT", models.SideLong); len(lots) != 0 {
		t.Fatalf("ledger mutated despite missing order id")
	}
	if h.signals.Count("BTCUSDT", models.SideLong) != 0 {
		t.Fatalf("signal not withdrawn")
	}
	if !h.engine.InCooldown("BTCUSDT") {
		t.Fatalf("cooldown must follow every attempt")
	}
}

func TestEntryFillOpensLot(t *testing.T) {
	h := newHarness(&fakeBroker{
		orderID:  "42",
		statuses: []models.FillStatus{{Status: "FILLED", AvgPrice: 100.2, FilledQty: 0.001}},
	})
	action := models.TradeAction{
		Kind: models.ActionEntry, Symbol: "BTCUSDT", Side: models.SideLong,
		Price: 100, Mode: models.ModeInit,
	}

	if err := h.engine.Execute(context.Background(), action); err != nil {
		t.Fatalf("execute: %v", err)
	}

	open := h.lots.Open("BTCUSDT", models.SideLong)
	if len(open) != 1 {
		t.Fatalf("expected 1 open lot, got %d", len(open))
	}
	if open[0].EntryPrice != 100.2 || open[0].Tag != models.ModeInit {
		t.Fatalf("unexpected lot %+v", open[0])
	}
	if h.signals.Count("BTCUSDT", models.SideLong) != 0 {
		t.Fatalf("pending signal survived the fill")
	}
	if len(h.history.trades) != 1 || h.history.trades[0].Kind != models.ActionEntry {
		t.Fatalf("history not appended: %+v", h.history.trades)
	}
	if len(h.events.trades) != 1 {
		t.Fatalf("fill event not published")
	}
	if h.broker.reduceOnly[0] {
		t.Fatalf("entry must not be reduce-only")
	}
}

func TestEntryTimeoutCancels(t *testing.T) {
	h := newHarness(&fakeBroker{orderID: "42"}) // status stays NEW
	action := models.TradeAction{
		Kind: models.ActionEntry, Symbol: "BTCUSDT", Side: models.SideLong,
		Price: 100, Mode: models.ModeInit,
	}

	if err := h.engine.Execute(context.Background(), action); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(h.broker.canceled) != 1 || h.broker.canceled[0] != "42" {
		t.Fatalf("timed-out order not canceled: %v", h.broker.canceled)
	}
	if lots, _ := h.store.LoadOpenLots(context.Background(), "BTCUSDT", models.SideLong); len(lots) != 0 {
		t.Fatalf("ledger mutated on timeout")
	}
	if h.signals.Count("BTCUSDT", models.SideLong) != 0 {
		t.Fatalf("signal not withdrawn on timeout")
	}
}

func TestExitClosesLotsWithNetPnL(t *testing.T) {
	broker := &fakeBroker{
		orderID:  "77",
		statuses: []models.FillStatus{{Status: "FILLED", AvgPrice: 101, FilledQty: 2}},
	}
	h := newHarness(broker)
	ctx := context.Background()

	var ids []string
	for i, ts := range []int64{1000, 2000} {
		lot, err := h.store.OpenLot(ctx, models.Lot{
			Symbol: "BTCUSDT", Side: models.SideLong,
			EntryTsMs: ts, EntryPrice: 100, Qty: 1, Tag: models.ModeInit,
		})
		if err != nil {
			t.Fatalf("seed lot %d: %v", i, err)
		}
		h.lots.OnOpen(lot)
		ids = append(ids, lot.ID)
	}

	action := models.TradeAction{
		Kind: models.ActionExit, Symbol: "BTCUSDT", Side: models.SideLong,
		Price: 101, Mode: models.ModeNormal, TargetLotIDs: ids, TargetPos: []int{1, 2},
	}
	if err := h.engine.Execute(ctx, action); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if h.lots.Count("BTCUSDT", models.SideLong) != 0 {
		t.Fatalf("lots index not drained")
	}
	if lots, _ := h.store.LoadOpenLots(ctx, "BTCUSDT", models.SideLong); len(lots) != 0 {
		t.Fatalf("durable open-set not drained")
	}
	if !broker.reduceOnly[0] {
		t.Fatalf("exit must be reduce-only")
	}
	if broker.qtys[0] != 2 {
		t.Fatalf("exit qty should sum targets, got %v", broker.qtys[0])
	}

	if len(h.history.trades) != 1 {
		t.Fatalf("expected one history row, got %d", len(h.history.trades))
	}
	trade := h.history.trades[0]
	wantPnL := 2.0 - 2*0.001*101*2 // gross minus round-trip fee estimate
	if math.Abs(trade.PnL-wantPnL) > 1e-9 {
		t.Fatalf("pnl = %v, want %v", trade.PnL, wantPnL)
	}
	if len(trade.LotIDs) != 2 {
		t.Fatalf("trade must carry closed lot ids: %+v", trade)
	}
}

func TestExitSkipsMissingTargets(t *testing.T) {
	broker := &fakeBroker{orderID: "77"}
	h := newHarness(broker)

	action := models.TradeAction{
		Kind: models.ActionExit, Symbol: "BTCUSDT", Side: models.SideLong,
		Price: 101, Mode: models.ModeTimeLimit, TargetLotIDs: []string{"gone"},
	}
	if err := h.engine.Execute(context.Background(), action); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if broker.submits != 0 {
		t.Fatalf("order submitted with no live targets")
	}
}
