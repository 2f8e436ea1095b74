package market

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// IndicatorConfig tunes the moving-average and adaptive-threshold search.
type IndicatorConfig struct {
	Window           int     // SMA window
	MinThreshold     float64 // search lower bound
	MaxThreshold     float64 // search upper bound
	TargetCross      int     // crossing-count budget
	CrossGapBars     int     // debounce: min bars between counted crossings
	QuantizeDecimals int
	MomentumFraction float64 // momentum threshold as a fraction of the MA threshold
}

// IndicatorEngine derives per-symbol indicator state from confirmed bars:
// a typical-price SMA and the tightest MA-band threshold whose debounced
// crossing count stays within the configured budget.
type IndicatorEngine struct {
	mu     sync.RWMutex
	cfg    IndicatorConfig
	states map[string]*models.IndicatorState
	log    *logger.Logger
}

// NewIndicatorEngine creates an indicator engine.
func NewIndicatorEngine(cfg IndicatorConfig, log *logger.Logger) *IndicatorEngine {
	if cfg.Window <= 0 {
		cfg.Window = 100
	}
	return &IndicatorEngine{
		cfg:    cfg,
		states: make(map[string]*models.IndicatorState),
		log:    log,
	}
}

// State returns the last published snapshot for the symbol, or nil.
func (e *IndicatorEngine) State(symbol string) *models.IndicatorState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.states[symbol]
}

// ComputeAll recomputes the full indicator state from the given bars and
// publishes it. Called once per confirmed bar or REST backfill, never per
// tick.
func (e *IndicatorEngine) ComputeAll(symbol string, candles []models.Candle) *models.IndicatorState {
	maSeries := e.smaSeries(candles)

	var currentMA *float64
	for i := len(maSeries) - 1; i >= 0; i-- {
		if maSeries[i] != nil {
			currentMA = maSeries[i]
			break
		}
	}

	raw := e.searchThreshold(candles, maSeries)
	quantized := roundHalfUp(raw, e.cfg.QuantizeDecimals)

	var ref *models.Candle
	if len(candles) > 0 {
		c := candles[len(candles)-1]
		ref = &c
	}

	st := &models.IndicatorState{
		Symbol:            symbol,
		MASeries:          maSeries,
		CurrentMA:         currentMA,
		RawThreshold:      raw,
		Threshold:         quantized,
		MomentumThreshold: quantized * e.cfg.MomentumFraction,
		ReferenceCandle:   ref,
		UpdatedAt:         time.Now(),
	}

	e.mu.Lock()
	prev := e.states[symbol]
	e.states[symbol] = st
	e.mu.Unlock()

	if prev != nil && prev.Threshold != quantized {
		e.log.Info("ma threshold changed",
			logger.String("symbol", symbol),
			logger.Float64("old", prev.Threshold),
			logger.Float64("new", quantized))
	}
	return st
}

// smaSeries computes the typical-price SMA; entries before Window-1 data
// points are nil.
func (e *IndicatorEngine) smaSeries(candles []models.Candle) []*float64 {
	w := e.cfg.Window
	out := make([]*float64, len(candles))
	var sum float64
	for i, c := range candles {
		sum += c.TypicalPrice()
		if i >= w {
			sum -= candles[i-w].TypicalPrice()
		}
		if i >= w-1 {
			v := sum / float64(w)
			out[i] = &v
		}
	}
	return out
}

// searchThreshold bisects [MinThreshold, MaxThreshold] for the smallest
// threshold whose crossing count stays within TargetCross. Tighter
// thresholds produce more crossings, so the budget self-tunes sensitivity
// to recent volatility.
func (e *IndicatorEngine) searchThreshold(candles []models.Candle, maSeries []*float64) float64 {
	lo, hi := e.cfg.MinThreshold, e.cfg.MaxThreshold
	best := hi
	for i := 0; i < 20; i++ {
		mid := (lo + hi) / 2
		if e.countCrossings(candles, maSeries, mid) > e.cfg.TargetCross {
			lo = mid
		} else {
			best = mid
			hi = mid
		}
	}
	return best
}

// countCrossings counts sustained MA-band breaches: a bar whose range
// breaches ma*(1±thr) from the opposite or neutral state, at least
// CrossGapBars bars after the previous counted crossing.
func (e *IndicatorEngine) countCrossings(candles []models.Candle, maSeries []*float64, thr float64) int {
	const (
		sideNeutral = iota
		sideAbove
		sideBelow
	)
	state := sideNeutral
	lastCross := -(e.cfg.CrossGapBars + 1)
	count := 0

	for i, c := range candles {
		if maSeries[i] == nil {
			continue
		}
		ma := *maSeries[i]
		debounced := i-lastCross > e.cfg.CrossGapBars
		switch {
		case state != sideAbove && c.High >= ma*(1+thr):
			if debounced {
				count++
				lastCross = i
			}
			state = sideAbove
		case state != sideBelow && c.Low <= ma*(1-thr):
			if debounced {
				count++
				lastCross = i
			}
			state = sideBelow
		}
	}
	return count
}

// roundHalfUp quantizes to a fixed decimal precision so float noise cannot
// flap the published threshold.
func roundHalfUp(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Floor(v*p+0.5) / p
}
