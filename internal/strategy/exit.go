package strategy

import (
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// slTpBand returns the stop-loss/take-profit multiplier on the effective
// threshold for an item of the given age. Fresh items get wide bands that
// tighten as the position ages.
func slTpBand(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return 3.0
	case age < 2*time.Hour:
		return 2.5
	case age < 12*time.Hour:
		return 2.0
	case age < 24*time.Hour:
		return 1.5
	default:
		return 1.0
	}
}

// evaluateExit walks the exit branches in priority order and returns the
// first that triggers, or nil.
func (e *Engine) evaluateExit(in Input, side models.Side, state SideState) *models.TradeAction {
	if len(state.Items) == 0 {
		return nil
	}
	for _, try := range []func(Input, models.Side, SideState) *models.TradeAction{
		e.tryTimeLimit,
		e.tryStopLossTakeProfit,
		e.tryRiskControl,
		e.tryNormalTouch,
		e.tryScaleOut,
		e.tryInitOut,
		e.tryNearTouch,
	} {
		if a := try(in, side, state); a != nil {
			return a
		}
	}
	return nil
}

// exitAction assembles the exit, resolving 1-based positions to confirmed
// lot ids. Pending items cannot be closed, so an all-pending target set
// yields no action.
func (e *Engine) exitAction(in Input, side models.Side, state SideState, mode string, positions []int, reason string) *models.TradeAction {
	ids, kept := lotIDs(state.Items, positions)
	if len(ids) == 0 {
		return nil
	}
	e.log.Info("exit decided",
		logger.String("symbol", in.Symbol),
		logger.String("side", string(side)),
		logger.String("mode", mode),
		logger.Int("targets", len(ids)),
		logger.Float64("price", in.Price))
	return &models.TradeAction{
		Kind:         models.ActionExit,
		Symbol:       in.Symbol,
		Side:         side,
		Price:        in.Price,
		Mode:         mode,
		TargetLotIDs: ids,
		TargetPos:    kept,
		Reason:       reason,
	}
}

// tryTimeLimit closes the oldest item once it has been held past the hard
// time limit, regardless of price.
func (e *Engine) tryTimeLimit(in Input, side models.Side, state SideState) *models.TradeAction {
	age := ageOf(in.NowMs, state.Items[0].EntryTsMs)
	if age <= e.params.TimeLimit {
		return nil
	}
	reason := fmt.Sprintf("oldest item held %s, limit %s", age.Truncate(time.Second), e.params.TimeLimit)
	return e.exitAction(in, side, state, models.ModeTimeLimit, []int{1}, reason)
}

// tryStopLossTakeProfit applies age-banded bounds to the oldest item's
// unrealized move and closes it when either side breaches.
func (e *Engine) tryStopLossTakeProfit(in Input, side models.Side, state SideState) *models.TradeAction {
	oldest := state.Items[0]
	band := slTpBand(ageOf(in.NowMs, oldest.EntryTsMs))
	bound := band * e.effectiveThreshold(in.Threshold)
	pnl := pnlPct(side, oldest.EntryPrice, in.Price)

	switch {
	case pnl >= bound:
		reason := fmt.Sprintf("oldest item pnl %.4f >= band %.1fx bound %.4f", pnl, band, bound)
		return e.exitAction(in, side, state, models.ModeTakeProfit, []int{1}, reason)
	case pnl <= -bound:
		reason := fmt.Sprintf("oldest item pnl %.4f <= band %.1fx bound -%.4f", pnl, band, bound)
		return e.exitAction(in, side, state, models.ModeStopLoss, []int{1}, reason)
	}
	return nil
}

// tryRiskControl de-risks a heavily pyramided book: with 3 or 4 items open
// and the average basis moved a small favorable step, shed the oldest (3) or
// flatten entirely (4).
func (e *Engine) tryRiskControl(in Input, side models.Side, state SideState) *models.TradeAction {
	n := len(state.Items)
	if n != 3 && n != 4 {
		return nil
	}
	var sum float64
	for _, item := range state.Items {
		sum += item.EntryPrice
	}
	avg := sum / float64(n)
	if pnlPct(side, avg, in.Price) < e.params.RiskControlPct {
		return nil
	}

	positions := []int{1}
	if n == 4 {
		positions = allPositions(n)
	}
	reason := fmt.Sprintf("%d items open, avg basis %.6f moved %.4f favorable", n, avg, e.params.RiskControlPct)
	return e.exitAction(in, side, state, models.ModeRiskControl, positions, reason)
}

// tryNormalTouch flattens the side when the price touches the far MA band,
// but only once the newest entry has aged out of the near window. Fresh
// books are handled by the near-touch branch instead.
func (e *Engine) tryNormalTouch(in Input, side models.Side, state SideState) *models.TradeAction {
	if ageOf(in.NowMs, newest(state.Items).EntryTsMs) <= e.params.NearWindow {
		return nil
	}
	eff := e.effectiveThreshold(in.Threshold)
	bound := *in.MA * (1 + dir(side)*eff)
	if dir(side)*(in.Price-bound) < 0 {
		return nil
	}
	reason := fmt.Sprintf("price %.6f touched far band %.6f (ma %.6f, eff %.4f)", in.Price, bound, *in.MA, eff)
	return e.exitAction(in, side, state, models.ModeNormal, allPositions(len(state.Items)), reason)
}

// tryScaleOut peels off the newest item when the price has recovered past
// the second-newest basis with a half-band MA confirmation, rate-limited by
// the scale-out cooldown.
func (e *Engine) tryScaleOut(in Input, side models.Side, state SideState) *models.TradeAction {
	n := len(state.Items)
	if n < 2 {
		return nil
	}
	if state.LastScaleOutMs > 0 && ageOf(in.NowMs, state.LastScaleOutMs) < e.params.ScaleOutCooldown {
		return nil
	}
	prev := state.Items[n-2]
	if dir(side)*(in.Price-prev.EntryPrice) < 0 {
		return nil
	}
	eff := e.effectiveThreshold(in.Threshold)
	halfBound := *in.MA * (1 + dir(side)*eff/2)
	if dir(side)*(in.Price-halfBound) < 0 {
		return nil
	}
	reason := fmt.Sprintf("price %.6f recovered past prior basis %.6f and half band %.6f",
		in.Price, prev.EntryPrice, halfBound)
	return e.exitAction(in, side, state, models.ModeScaleOut, []int{n}, reason)
}

// tryInitOut unwinds a lone item on a half-band MA touch with momentum
// corroboration, outside the scale-out cooldown.
func (e *Engine) tryInitOut(in Input, side models.Side, state SideState) *models.TradeAction {
	if len(state.Items) != 1 {
		return nil
	}
	if state.LastScaleOutMs > 0 && ageOf(in.NowMs, state.LastScaleOutMs) < e.params.ScaleOutCooldown {
		return nil
	}
	eff := e.effectiveThreshold(in.Threshold)
	halfBound := *in.MA * (1 + dir(side)*eff/2)
	if dir(side)*(in.Price-halfBound) < 0 {
		return nil
	}
	m := momentum(in.Price, in.Reference)
	if abs(m) < in.MomentumThreshold {
		return nil
	}
	reason := fmt.Sprintf("sole item, price %.6f past half band %.6f, momentum %.4f", in.Price, halfBound, m)
	return e.exitAction(in, side, state, models.ModeInitOut, []int{1}, reason)
}

// tryNearTouch closes the newest item on the loose easing-only band while
// the book is still inside the near window.
func (e *Engine) tryNearTouch(in Input, side models.Side, state SideState) *models.TradeAction {
	n := len(state.Items)
	if ageOf(in.NowMs, state.Items[n-1].EntryTsMs) > e.params.NearWindow {
		return nil
	}
	easing := e.easing(in.Threshold)
	bound := *in.MA * (1 + dir(side)*easing)
	if dir(side)*(in.Price-bound) < 0 {
		return nil
	}
	reason := fmt.Sprintf("price %.6f touched near band %.6f within near window", in.Price, bound)
	return e.exitAction(in, side, state, models.ModeNearTouch, []int{n}, reason)
}

func allPositions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}
