package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/ledger"
	"TradePulse/internal/market"
	"TradePulse/internal/strategy"
	"TradePulse/pkg/logger"
)

// executor is the slice of the execution engine the tick pipeline needs.
type executor interface {
	InCooldown(symbol string) bool
	Execute(ctx context.Context, action models.TradeAction) error
}

// TickRunner drives the per-symbol decision pipeline: ingest the current
// price into candles and the jump ring, refresh the indicator on confirmed
// bars, evaluate the strategy and hand decided actions to the executor.
type TickRunner struct {
	feed      repository.PriceFeed
	candles   *market.CandleEngine
	indicator *market.IndicatorEngine
	jump      *market.JumpDetector
	strategy  *strategy.Engine
	exec      executor
	lots      *ledger.LotsIndex
	signals   *ledger.OpenSignalsIndex
	metrics   repository.Metrics
	log       *logger.Logger

	jumpPct float64

	mu           sync.Mutex
	lastScaleOut map[string]int64 // (symbol|side) -> unix ms

	nowFn func() time.Time
}

// NewTickRunner wires the pipeline.
func NewTickRunner(
	feed repository.PriceFeed,
	candles *market.CandleEngine,
	indicator *market.IndicatorEngine,
	jump *market.JumpDetector,
	strat *strategy.Engine,
	exec executor,
	lots *ledger.LotsIndex,
	signals *ledger.OpenSignalsIndex,
	metrics repository.Metrics,
	jumpPct float64,
	log *logger.Logger,
) *TickRunner {
	return &TickRunner{
		feed:         feed,
		candles:      candles,
		indicator:    indicator,
		jump:         jump,
		strategy:     strat,
		exec:         exec,
		lots:         lots,
		signals:      signals,
		metrics:      metrics,
		jumpPct:      jumpPct,
		log:          log,
		lastScaleOut: make(map[string]int64),
		nowFn:        time.Now,
	}
}

// RunOnce processes one tick for one symbol. A missing price or indicator
// state skips the symbol for this tick; errors are confined to the symbol
// and never escape to the loop.
func (r *TickRunner) RunOnce(ctx context.Context, symbol string) {
	if r.exec.InCooldown(symbol) {
		r.log.Debug("symbol in cooldown", logger.String("symbol", symbol))
		return
	}

	price := r.feed.Price(symbol)
	if price == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.RecordTick(symbol)
		r.metrics.RecordLastPrice(symbol, *price)
	}

	exchangeTs := r.feed.LastExchangeTs(symbol)
	tsSec := r.nowFn().Unix()
	if exchangeTs != nil {
		tsSec = int64(*exchangeTs)
	}
	r.candles.Accumulate(symbol, *price, tsSec)
	r.jump.Record(symbol, *price, exchangeTs)

	if bar := r.feed.LastConfirmedBar(symbol); bar != nil {
		r.candles.ApplyConfirmed(symbol, *bar)
		r.indicator.ComputeAll(symbol, r.candles.Candles(symbol))
	}

	state := r.indicator.State(symbol)
	if state == nil || state.CurrentMA == nil {
		return
	}

	jumpRes := r.checkJump(symbol)
	in := strategy.Input{
		Symbol:            symbol,
		Price:             *price,
		NowMs:             r.nowFn().UnixMilli(),
		MA:                state.CurrentMA,
		Threshold:         state.Threshold,
		MomentumThreshold: state.MomentumThreshold,
		Reference:         state.ReferenceCandle,
		Long:              r.sideState(symbol, models.SideLong),
		Short:             r.sideState(symbol, models.SideShort),
	}

	for _, action := range r.strategy.Evaluate(in) {
		if r.suppressedByJump(action, jumpRes) {
			r.log.Info("entry suppressed by jump guard",
				logger.String("symbol", symbol),
				logger.String("side", string(action.Side)),
				logger.String("jump", jumpRes.State.String()))
			continue
		}
		if err := r.exec.Execute(ctx, action); err != nil {
			r.log.Error("execute action failed",
				logger.String("symbol", symbol),
				logger.String("mode", action.Mode),
				logger.Error(err))
			if r.metrics != nil {
				r.metrics.RecordError("execute")
			}
			return
		}
		if action.Kind == models.ActionExit && action.Mode == models.ModeScaleOut {
			r.markScaleOut(symbol, action.Side)
		}
	}
}

func (r *TickRunner) checkJump(symbol string) models.JumpResult {
	if r.jumpPct <= 0 {
		return models.JumpResult{}
	}
	pct := r.jumpPct
	return r.jump.Check(symbol, &pct)
}

// suppressedByJump blocks initial entries while the price is jumping in the
// direction the entry would fade. Pyramiding and exits are never blocked.
func (r *TickRunner) suppressedByJump(action models.TradeAction, jump models.JumpResult) bool {
	if action.Kind != models.ActionEntry || action.Mode != models.ModeInit {
		return false
	}
	if action.Side == models.SideLong {
		return jump.State == models.JumpDown
	}
	return jump.State == models.JumpUp
}

// sideState merges confirmed lots and still-pending signals into the
// oldest-first book view the strategy evaluates.
func (r *TickRunner) sideState(symbol string, side models.Side) strategy.SideState {
	lots := r.lots.Open(symbol, side)
	sigs := r.signals.Open(symbol, side)

	items := make([]strategy.OpenItem, 0, len(lots)+len(sigs))
	for _, lot := range lots {
		items = append(items, strategy.OpenItem{
			ID:         lot.ID,
			EntryTsMs:  lot.EntryTsMs,
			EntryPrice: lot.EntryPrice,
			Tag:        lot.Tag,
		})
	}
	for _, sig := range sigs {
		items = append(items, strategy.OpenItem{
			ID:         sig.ID,
			EntryTsMs:  sig.TimestampMs,
			EntryPrice: sig.Price,
			Tag:        sig.Tag,
			Pending:    true,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].EntryTsMs < items[j].EntryTsMs })

	r.mu.Lock()
	lastSO := r.lastScaleOut[symbol+"|"+string(side)]
	r.mu.Unlock()
	return strategy.SideState{Items: items, LastScaleOutMs: lastSO}
}

func (r *TickRunner) markScaleOut(symbol string, side models.Side) {
	r.mu.Lock()
	r.lastScaleOut[symbol+"|"+string(side)] = r.nowFn().UnixMilli()
	r.mu.Unlock()
}
