package strategy

import (
	"fmt"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// evaluateEntry returns at most one entry action for a side. Modes are
// checked from the empty-book case outward; the first trigger wins.
func (e *Engine) evaluateEntry(in Input, side models.Side, state SideState) *models.TradeAction {
	if len(state.Items) >= e.params.MaxOpen {
		return nil
	}

	if a := e.tryInit(in, side, state); a != nil {
		return a
	}
	if a := e.tryInitPyramid(in, side, state); a != nil {
		return a
	}
	return e.tryScaleIn(in, side, state)
}

// tryInit opens the first item of a side: the price must breach the full
// effective band around the MA against the favorable direction, with
// momentum corroboration.
func (e *Engine) tryInit(in Input, side models.Side, state SideState) *models.TradeAction {
	if len(state.Items) != 0 {
		return nil
	}
	eff := e.effectiveThreshold(in.Threshold)
	trigger := *in.MA * (1 - dir(side)*eff)
	if dir(side)*(in.Price-trigger) > 0 {
		return nil
	}
	m := momentum(in.Price, in.Reference)
	if abs(m) < in.MomentumThreshold {
		return nil
	}

	reason := fmt.Sprintf("price %.6f breached %s band %.6f (ma %.6f, eff %.4f), momentum %.4f >= %.4f",
		in.Price, side, trigger, *in.MA, eff, m, in.MomentumThreshold)
	e.log.Info("entry decided",
		logger.String("symbol", in.Symbol),
		logger.String("side", string(side)),
		logger.String("mode", models.ModeInit),
		logger.Float64("price", in.Price))
	return &models.TradeAction{
		Kind:   models.ActionEntry,
		Symbol: in.Symbol,
		Side:   side,
		Price:  in.Price,
		Mode:   models.ModeInit,
		Reason: reason,
	}
}

// tryInitPyramid adds the second or third item while the initial move is
// still fresh: the oldest item must be an INIT entry younger than the watch
// window, and the price must have run a further k multiples of the effective
// threshold beyond that entry, adverse for the opener.
func (e *Engine) tryInitPyramid(in Input, side models.Side, state SideState) *models.TradeAction {
	n := len(state.Items)
	if n != 1 && n != 2 {
		return nil
	}
	oldest := state.Items[0]
	if oldest.Tag != models.ModeInit {
		return nil
	}
	if ageOf(in.NowMs, oldest.EntryTsMs) >= e.params.WatchWindow {
		return nil
	}

	k := float64(n)
	eff := e.effectiveThreshold(in.Threshold)
	trigger := oldest.EntryPrice * (1 - dir(side)*k*eff)
	if dir(side)*(in.Price-trigger) > 0 {
		return nil
	}

	mode := models.ModeInit2
	if n == 2 {
		mode = models.ModeInit3
	}
	reason := fmt.Sprintf("price %.6f ran %gx eff threshold past init entry %.6f (trigger %.6f)",
		in.Price, k, oldest.EntryPrice, trigger)
	e.log.Info("entry decided",
		logger.String("symbol", in.Symbol),
		logger.String("side", string(side)),
		logger.String("mode", mode),
		logger.Float64("price", in.Price))
	return &models.TradeAction{
		Kind:   models.ActionEntry,
		Symbol: in.Symbol,
		Side:   side,
		Price:  in.Price,
		Mode:   mode,
		Reason: reason,
	}
}

// tryScaleIn averages further into an adverse move once the newest item has
// been held long enough. Needs the price below the newest basis (for longs),
// momentum corroboration and a half-band MA breach.
func (e *Engine) tryScaleIn(in Input, side models.Side, state SideState) *models.TradeAction {
	if len(state.Items) == 0 {
		return nil
	}
	last := newest(state.Items)
	if ageOf(in.NowMs, last.EntryTsMs) < e.params.ReentryCooldown {
		return nil
	}
	if dir(side)*(in.Price-last.EntryPrice) >= 0 {
		return nil
	}
	eff := e.effectiveThreshold(in.Threshold)
	halfTrigger := *in.MA * (1 - dir(side)*eff/2)
	if dir(side)*(in.Price-halfTrigger) > 0 {
		return nil
	}
	m := momentum(in.Price, in.Reference)
	if abs(m) < in.MomentumThreshold {
		return nil
	}

	reason := fmt.Sprintf("price %.6f adverse of newest entry %.6f and half band %.6f, momentum %.4f",
		in.Price, last.EntryPrice, halfTrigger, m)
	e.log.Info("entry decided",
		logger.String("symbol", in.Symbol),
		logger.String("side", string(side)),
		logger.String("mode", models.ModeScaleIn),
		logger.Float64("price", in.Price))
	return &models.TradeAction{
		Kind:   models.ActionEntry,
		Symbol: in.Symbol,
		Side:   side,
		Price:  in.Price,
		Mode:   models.ModeScaleIn,
		Reason: reason,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
