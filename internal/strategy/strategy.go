package strategy

import (
	"math"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// Params are the tunables of the decision engine. Thresholds themselves are
// not here: they arrive per tick from the indicator state.
type Params struct {
	MaxOpen          int
	EasingFraction   float64
	WatchWindow      time.Duration
	ReentryCooldown  time.Duration
	TimeLimit        time.Duration
	NearWindow       time.Duration
	ScaleOutCooldown time.Duration
	RiskControlPct   float64
}

// OpenItem is one open position entry as the engine sees it: either a
// confirmed lot or a still-pending signal. Pending items count toward the
// open cap but are never targeted by exits.
type OpenItem struct {
	ID         string
	EntryTsMs  int64
	EntryPrice float64
	Tag        string
	Pending    bool
}

// SideState is the per-side book view handed to Evaluate.
type SideState struct {
	Items          []OpenItem // oldest-first
	LastScaleOutMs int64      // 0 when never
}

// Input is everything one evaluation needs. Evaluate never reads anything
// else, which keeps decisions replayable from logs.
type Input struct {
	Symbol            string
	Price             float64
	NowMs             int64
	MA                *float64
	Threshold         float64 // quantized
	MomentumThreshold float64
	Reference         *models.Candle
	Long              SideState
	Short             SideState
}

// Engine is the pure decision core. It owns no I/O and no mutable state
// beyond its parameters; every call is a function of its Input.
type Engine struct {
	params Params
	log    *logger.Logger
}

// NewEngine creates a decision engine.
func NewEngine(params Params, log *logger.Logger) *Engine {
	return &Engine{params: params, log: log}
}

// Evaluate inspects one side's book at a time, exits strictly before
// entries. An exit decision for a side suppresses entry evaluation for that
// side on the same tick so the same book is never opened and closed at once.
func (e *Engine) Evaluate(in Input) []models.TradeAction {
	if in.MA == nil || in.Threshold <= 0 || in.Price <= 0 {
		return nil
	}

	var actions []models.TradeAction
	for _, side := range []models.Side{models.SideLong, models.SideShort} {
		state := in.Long
		if side == models.SideShort {
			state = in.Short
		}

		if exit := e.evaluateExit(in, side, state); exit != nil {
			actions = append(actions, *exit)
			continue
		}
		if entry := e.evaluateEntry(in, side, state); entry != nil {
			actions = append(actions, *entry)
		}
	}
	return actions
}

// effectiveThreshold dampens the raw quantized threshold by the easing
// fraction so decisions do not oscillate right at the boundary.
func (e *Engine) effectiveThreshold(threshold float64) float64 {
	return threshold * (1 - e.params.EasingFraction)
}

func (e *Engine) easing(threshold float64) float64 {
	return threshold * e.params.EasingFraction
}

// momentum is the signed relative move of the price against the previous
// reference candle, taking the OHLC ratio with the largest magnitude.
// Returns 0 when there is no reference yet.
func momentum(price float64, ref *models.Candle) float64 {
	if ref == nil {
		return 0
	}
	best := 0.0
	for _, base := range []float64{ref.Open, ref.High, ref.Low, ref.Close} {
		if base <= 0 {
			continue
		}
		r := price/base - 1
		if math.Abs(r) > math.Abs(best) {
			best = r
		}
	}
	return best
}

// dir maps a side onto the sign of its favorable price direction.
func dir(side models.Side) float64 {
	if side == models.SideLong {
		return 1
	}
	return -1
}

// pnlPct is the relative gain of an open item at the current price, positive
// when favorable for the holder.
func pnlPct(side models.Side, entryPrice, price float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	return dir(side) * (price/entryPrice - 1)
}

func newest(items []OpenItem) OpenItem { return items[len(items)-1] }

// lotIDs collects the confirmed lot ids of targeted items and their 1-based
// positions in the open book. Pending items are skipped: there is no lot to
// close yet.
func lotIDs(items []OpenItem, positions []int) ([]string, []int) {
	ids := make([]string, 0, len(positions))
	kept := make([]int, 0, len(positions))
	for _, pos := range positions {
		item := items[pos-1]
		if item.Pending {
			continue
		}
		ids = append(ids, item.ID)
		kept = append(kept, pos)
	}
	return ids, kept
}

func ageOf(nowMs, tsMs int64) time.Duration {
	return time.Duration(nowMs-tsMs) * time.Millisecond
}
