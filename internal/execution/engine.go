package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/ledger"
	"TradePulse/pkg/cache"
	"TradePulse/pkg/logger"
)

// Config are the execution tunables.
type Config struct {
	OrderQty     float64
	FillChecks   int
	FillInterval time.Duration
	TakerFee     float64
	Cooldown     time.Duration
}

// Deps are the collaborators an Engine needs. History and Events may be nil
// when the deployment runs without them.
type Deps struct {
	Broker  repository.Broker
	Store   repository.LedgerStore
	Lots    *ledger.LotsIndex
	Signals *ledger.OpenSignalsIndex
	History repository.TradeHistory
	Events  repository.EventPublisher
	Cache   cache.Service
	Metrics repository.Metrics
}

// Engine turns decided trade actions into confirmed ledger transitions. One
// global mutex serializes every execution so ledger reads-then-writes around
// a fill never interleave with another in-flight order.
type Engine struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	log  *logger.Logger

	cdMu      sync.Mutex
	cooldowns map[string]time.Time

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration)
}

// NewEngine creates an execution engine.
func NewEngine(cfg Config, deps Deps, log *logger.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		log:       log,
		cooldowns: make(map[string]time.Time),
		nowFn:     time.Now,
		sleepFn:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// InCooldown reports whether the symbol is still inside the post-execution
// cooldown window. The tick runner skips evaluation while this holds, so
// strategy state is never re-evaluated against stale position data.
func (e *Engine) InCooldown(symbol string) bool {
	e.cdMu.Lock()
	defer e.cdMu.Unlock()
	until, ok := e.cooldowns[symbol]
	return ok && e.nowFn().Before(until)
}

func (e *Engine) markCooldown(symbol string) {
	e.cdMu.Lock()
	e.cooldowns[symbol] = e.nowFn().Add(e.cfg.Cooldown)
	e.cdMu.Unlock()
}

// Execute carries one decided action through submit, fill-wait and ledger
// reconciliation. The cooldown is recorded after every attempt, successful
// or not.
func (e *Engine) Execute(ctx context.Context, action models.TradeAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.markCooldown(action.Symbol)

	start := e.nowFn()
	defer func() {
		if e.deps.Metrics != nil {
			e.deps.Metrics.RecordLatency("execute", e.nowFn().Sub(start).Seconds())
		}
	}()

	switch action.Kind {
	case models.ActionEntry:
		return e.executeEntry(ctx, action)
	case models.ActionExit:
		return e.executeExit(ctx, action)
	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

func (e *Engine) executeEntry(ctx context.Context, action models.TradeAction) error {
	sig := models.OpenSignal{
		ID:          uuid.NewString(),
		Symbol:      action.Symbol,
		Side:        action.Side,
		Kind:        models.SignalEntry,
		Price:       action.Price,
		TimestampMs: e.nowFn().UnixMilli(),
		Tag:         action.Mode,
	}
	e.deps.Signals.OnOpen(sig)
	withdraw := func() { e.deps.Signals.Remove(action.Symbol, action.Side, sig.ID) }

	res, err := e.deps.Broker.SubmitMarketOrder(ctx, action.Symbol, action.Side, e.cfg.OrderQty, false)
	if err != nil {
		withdraw()
		e.recordOrder(action, "submit_error")
		return fmt.Errorf("submit entry %s/%s: %w", action.Symbol, action.Side, err)
	}
	if res.OrderID == "" {
		withdraw()
		e.recordOrder(action, "no_order_id")
		e.log.Warn("entry order returned no id",
			logger.String("symbol", action.Symbol),
			logger.String("side", string(action.Side)),
			logger.String("mode", action.Mode))
		return nil
	}

	status, terminal := e.waitForFill(ctx, action.Symbol, res.OrderID)
	switch {
	case status.Filled():
		return e.confirmEntry(ctx, action, sig, res.OrderID, status)
	case terminal:
		withdraw()
		e.recordOrder(action, "rejected")
		e.log.Warn("entry order ended unfilled",
			logger.String("symbol", action.Symbol),
			logger.String("order_id", res.OrderID),
			logger.String("status", status.Status))
		return nil
	default:
		e.cancelStray(ctx, action.Symbol, res.OrderID)
		withdraw()
		e.recordOrder(action, "timeout")
		return nil
	}
}

// confirmEntry lands the durable open and mirrors it into the in-memory
// index, then fans out history, events and a snapshot refresh.
func (e *Engine) confirmEntry(ctx context.Context, action models.TradeAction, sig models.OpenSignal, orderID string, status models.FillStatus) error {
	price := status.AvgPrice
	if price <= 0 {
		price = action.Price
	}
	qty := status.FilledQty
	if qty <= 0 {
		qty = e.cfg.OrderQty
	}

	lot, err := e.deps.Store.OpenLot(ctx, models.Lot{
		Symbol:         action.Symbol,
		Side:           action.Side,
		EntryTsMs:      e.nowFn().UnixMilli(),
		EntryPrice:     price,
		Qty:            qty,
		OriginSignalID: sig.ID,
		Tag:            action.Mode,
	})
	if err != nil {
		// the fill happened; the next position sync reconciles it
		e.recordOrder(action, "ledger_error")
		return fmt.Errorf("open lot after fill %s: %w", orderID, err)
	}
	e.deps.Lots.OnOpen(lot)
	e.deps.Signals.Remove(action.Symbol, action.Side, sig.ID)
	e.recordOrder(action, "filled")
	e.recordOpenLots(action.Symbol, action.Side)

	e.log.Info("entry filled",
		logger.String("symbol", action.Symbol),
		logger.String("side", string(action.Side)),
		logger.String("mode", action.Mode),
		logger.String("lot_id", lot.ID),
		logger.Float64("price", price),
		logger.Float64("qty", qty))

	e.fanOut(ctx, models.ExecutedTrade{
		Symbol:      action.Symbol,
		Side:        action.Side,
		Kind:        models.ActionEntry,
		Mode:        action.Mode,
		Price:       price,
		Qty:         qty,
		Fee:         price * qty * e.cfg.TakerFee,
		OrderID:     orderID,
		LotIDs:      []string{lot.ID},
		TimestampMs: e.nowFn().UnixMilli(),
	})
	e.refreshSnapshot(ctx, action.Symbol)
	return nil
}

func (e *Engine) executeExit(ctx context.Context, action models.TradeAction) error {
	targets := make([]models.Lot, 0, len(action.TargetLotIDs))
	var qty float64
	for _, id := range action.TargetLotIDs {
		lot, err := e.deps.Store.GetLot(ctx, id)
		if err != nil {
			return fmt.Errorf("load exit target %s: %w", id, err)
		}
		if lot == nil {
			e.log.Warn("exit target already gone",
				logger.String("symbol", action.Symbol),
				logger.String("lot_id", id))
			continue
		}
		targets = append(targets, *lot)
		qty += lot.Qty
	}
	if len(targets) == 0 {
		return nil
	}

	res, err := e.deps.Broker.SubmitMarketOrder(ctx, action.Symbol, action.Side, qty, true)
	if err != nil {
		e.recordOrder(action, "submit_error")
		return fmt.Errorf("submit exit %s/%s: %w", action.Symbol, action.Side, err)
	}
	if res.OrderID == "" {
		e.recordOrder(action, "no_order_id")
		e.log.Warn("exit order returned no id",
			logger.String("symbol", action.Symbol),
			logger.String("side", string(action.Side)),
			logger.String("mode", action.Mode))
		return nil
	}

	status, terminal := e.waitForFill(ctx, action.Symbol, res.OrderID)
	switch {
	case status.Filled():
		return e.confirmExit(ctx, action, targets, res.OrderID, status)
	case terminal:
		e.recordOrder(action, "rejected")
		e.log.Warn("exit order ended unfilled",
			logger.String("symbol", action.Symbol),
			logger.String("order_id", res.OrderID),
			logger.String("status", status.Status))
		return nil
	default:
		e.cancelStray(ctx, action.Symbol, res.OrderID)
		e.recordOrder(action, "timeout")
		return nil
	}
}

// confirmExit closes each target lot durably (idempotent per lot) and
// realizes PnL net of a round-trip taker fee estimate.
func (e *Engine) confirmExit(ctx context.Context, action models.TradeAction, targets []models.Lot, orderID string, status models.FillStatus) error {
	price := status.AvgPrice
	if price <= 0 {
		price = action.Price
	}

	policy := models.PickFIFO
	if action.Mode == models.ModeScaleOut || action.Mode == models.ModeNearTouch {
		policy = models.PickLIFO
	}

	var gross, qty float64
	closed := make([]string, 0, len(targets))
	for _, lot := range targets {
		ok, err := e.deps.Store.CloseLot(ctx, lot.ID)
		if err != nil {
			return fmt.Errorf("close lot %s: %w", lot.ID, err)
		}
		if !ok {
			continue
		}
		e.deps.Lots.OnClose(action.Symbol, action.Side, lot.ID)
		e.deps.Signals.OnClose(action.Symbol, action.Side, policy)
		closed = append(closed, lot.ID)
		qty += lot.Qty
		if action.Side == models.SideLong {
			gross += (price - lot.EntryPrice) * lot.Qty
		} else {
			gross += (lot.EntryPrice - price) * lot.Qty
		}
	}
	if len(closed) == 0 {
		return nil
	}

	fee := 2 * e.cfg.TakerFee * price * qty
	pnl := gross - fee
	e.recordOrder(action, "filled")
	e.recordOpenLots(action.Symbol, action.Side)

	e.log.Info("exit filled",
		logger.String("symbol", action.Symbol),
		logger.String("side", string(action.Side)),
		logger.String("mode", action.Mode),
		logger.Int("lots", len(closed)),
		logger.Float64("price", price),
		logger.Float64("pnl", pnl))

	e.fanOut(ctx, models.ExecutedTrade{
		Symbol:      action.Symbol,
		Side:        action.Side,
		Kind:        models.ActionExit,
		Mode:        action.Mode,
		Price:       price,
		Qty:         qty,
		PnL:         pnl,
		Fee:         fee,
		OrderID:     orderID,
		LotIDs:      closed,
		TimestampMs: e.nowFn().UnixMilli(),
	})
	e.refreshSnapshot(ctx, action.Symbol)
	return nil
}

// waitForFill polls order status up to the configured check budget. The
// second return reports whether the order reached a terminal state; false
// means the budget ran out with the order still live.
func (e *Engine) waitForFill(ctx context.Context, symbol, orderID string) (models.FillStatus, bool) {
	var last models.FillStatus
	for i := 0; i < e.cfg.FillChecks; i++ {
		if i > 0 {
			e.sleepFn(ctx, e.cfg.FillInterval)
		}
		if ctx.Err() != nil {
			return last, false
		}
		status, err := e.deps.Broker.OrderStatus(ctx, symbol, orderID)
		if err != nil {
			e.log.Warn("order status poll failed",
				logger.String("symbol", symbol),
				logger.String("order_id", orderID),
				logger.Error(err))
			continue
		}
		last = status
		if status.Terminal() {
			return status, true
		}
	}
	return last, false
}

// cancelStray best-effort cancels a timed-out order. Failure is logged and
// tolerated; the periodic position sync reconciles any order that lived on.
func (e *Engine) cancelStray(ctx context.Context, symbol, orderID string) {
	if err := e.deps.Broker.CancelOrder(ctx, symbol, orderID); err != nil {
		e.log.Warn("cancel after fill timeout failed",
			logger.String("symbol", symbol),
			logger.String("order_id", orderID),
			logger.Error(err))
		return
	}
	e.log.Info("canceled unfilled order",
		logger.String("symbol", symbol),
		logger.String("order_id", orderID))
}

// fanOut appends the trade to the durable history and publishes the fill
// event. Both are best-effort side effects and never fail the execution.
func (e *Engine) fanOut(ctx context.Context, trade models.ExecutedTrade) {
	if e.deps.History != nil {
		if err := e.deps.History.Append(ctx, trade); err != nil {
			e.log.Error("append trade history failed", logger.Error(err),
				logger.String("symbol", trade.Symbol))
		}
	}
	if e.deps.Events != nil {
		if err := e.deps.Events.PublishFill(ctx, trade); err != nil {
			e.log.Error("publish fill event failed", logger.Error(err),
				logger.String("symbol", trade.Symbol))
		}
	}
}

// refreshSnapshot pulls the broker position view and caches it, durable and
// in-memory, so status reads after a fill see fresh numbers.
func (e *Engine) refreshSnapshot(ctx context.Context, symbol string) {
	positions, err := e.deps.Broker.Positions(ctx, symbol)
	if err != nil {
		e.log.Warn("position snapshot refresh failed",
			logger.String("symbol", symbol), logger.Error(err))
		return
	}
	for _, pos := range positions {
		key := fmt.Sprintf("pos:%s:%s", pos.Symbol, pos.Side)
		if err := e.deps.Store.PutSnapshot(ctx, key, pos); err != nil {
			e.log.Warn("persist position snapshot failed",
				logger.String("symbol", symbol), logger.Error(err))
		}
		if e.deps.Cache != nil {
			_ = e.deps.Cache.Set(ctx, key, pos, 10*time.Minute)
		}
	}
}

func (e *Engine) recordOrder(action models.TradeAction, outcome string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordOrder(action.Symbol, string(action.Kind), outcome)
	}
}

func (e *Engine) recordOpenLots(symbol string, side models.Side) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.RecordOpenLots(symbol, string(side), e.deps.Lots.Count(symbol, side))
	}
}
