package market

import (
	"math"
	"sort"
	"sync"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// CandleEngine aggregates a price stream into per-minute OHLC bars per
// symbol and reconciles them with exchange-confirmed bars. The retained
// sequence is bounded; the oldest bar is evicted once capacity is reached.
type CandleEngine struct {
	mu       sync.RWMutex
	capacity int
	bars     map[string][]models.Candle // minute-ordered; last may be in progress
	log      *logger.Logger
}

// NewCandleEngine creates an engine retaining up to capacity bars per symbol.
func NewCandleEngine(capacity int, log *logger.Logger) *CandleEngine {
	if capacity <= 0 {
		capacity = 1500
	}
	return &CandleEngine{
		capacity: capacity,
		bars:     make(map[string][]models.Candle),
		log:      log,
	}
}

// Accumulate folds one tick into the symbol's current-minute bar. A tick in
// a new minute seals the prior bar and opens a fresh one seeded O=H=L=C.
// Non-finite or non-positive prices are ignored.
func (e *CandleEngine) Accumulate(symbol string, price float64, tsSec int64) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return
	}
	minute := tsSec / 60

	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.bars[symbol]
	if n := len(seq); n > 0 {
		last := &seq[n-1]
		switch {
		case last.Minute == minute:
			if price > last.High {
				last.High = price
			}
			if price < last.Low {
				last.Low = price
			}
			last.Close = price
			return
		case last.Minute > minute:
			// out-of-order tick from an already-sealed minute
			return
		}
	}

	seq = append(seq, models.Candle{Minute: minute, Open: price, High: price, Low: price, Close: price})
	if len(seq) > e.capacity {
		seq = seq[len(seq)-e.capacity:]
	}
	e.bars[symbol] = seq
}

// ApplyConfirmed installs an exchange-confirmed bar, replacing any locally
// accumulated bar for the same minute. Minutes never duplicate.
func (e *CandleEngine) ApplyConfirmed(symbol string, bar models.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.bars[symbol]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].Minute >= bar.Minute })
	if i < len(seq) && seq[i].Minute == bar.Minute {
		seq[i] = bar
		return
	}
	// insert keeping minute order; confirmed bars may trail the live minute
	seq = append(seq, models.Candle{})
	copy(seq[i+1:], seq[i:])
	seq[i] = bar
	if len(seq) > e.capacity {
		seq = seq[len(seq)-e.capacity:]
	}
	e.bars[symbol] = seq
}

// Candles returns the retained bars oldest-first. The returned slice is a
// copy; the last element may still be accumulating.
func (e *CandleEngine) Candles(symbol string) []models.Candle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seq := e.bars[symbol]
	out := make([]models.Candle, len(seq))
	copy(out, seq)
	return out
}
