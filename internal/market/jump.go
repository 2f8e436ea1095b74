package market

import (
	"math"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// JumpConfig tunes abrupt-move detection.
type JumpConfig struct {
	HistoryNum    int           // ring size; detection requires a full ring
	PollInterval  time.Duration // expected spacing between samples
	MaxAge        time.Duration // samples older than this are stale
	SkewAllowance time.Duration // tolerated negative age from clock skew
}

type jumpSample struct {
	exchangeTs float64 // unix seconds; 0 when the feed gave none
	receiptTs  float64 // unix seconds, strictly monotonic per symbol
	price      float64
}

func (s jumpSample) ts() float64 {
	if s.exchangeTs > 0 {
		return s.exchangeTs
	}
	return s.receiptTs
}

// JumpDetector keeps a short time-ordered price history per symbol and
// flags abrupt directional moves with a relative-change test over a bounded
// window, tolerating irregular polling and exchange/local clock drift.
type JumpDetector struct {
	mu    sync.Mutex
	cfg   JumpConfig
	rings map[string][]jumpSample
	log   *logger.Logger
	nowFn func() time.Time
}

// NewJumpDetector creates a jump detector.
func NewJumpDetector(cfg JumpConfig, log *logger.Logger) *JumpDetector {
	if cfg.HistoryNum < 2 {
		cfg.HistoryNum = 2
	}
	return &JumpDetector{
		cfg:   cfg,
		rings: make(map[string][]jumpSample),
		log:   log,
		nowFn: time.Now,
	}
}

const receiptEpsilon = 1e-4

// Record appends a sample to the symbol's ring. Receipt-time ties are
// nudged forward by epsilon so ordering stays strict.
func (d *JumpDetector) Record(symbol string, price float64, exchangeTs *float64) {
	if math.IsNaN(price) || price <= 0 {
		return
	}
	now := float64(d.nowFn().UnixNano()) / 1e9

	d.mu.Lock()
	defer d.mu.Unlock()

	ring := d.rings[symbol]
	if n := len(ring); n > 0 && now <= ring[n-1].receiptTs {
		now = ring[n-1].receiptTs + receiptEpsilon
	}
	s := jumpSample{receiptTs: now, price: price}
	if exchangeTs != nil {
		s.exchangeTs = *exchangeTs
	}
	ring = append(ring, s)
	if len(ring) > d.cfg.HistoryNum {
		ring = ring[len(ring)-d.cfg.HistoryNum:]
	}
	d.rings[symbol] = ring
}

// Check scans the ring for a breach of jumpPct relative change between any
// in-window past sample and the newest price. Requires a full ring and a
// positive threshold; returns Watched when samples were in-window but none
// breached.
func (d *JumpDetector) Check(symbol string, jumpPct *float64) models.JumpResult {
	none := models.JumpResult{State: models.JumpNone}
	if jumpPct == nil || *jumpPct <= 0 {
		return none
	}

	d.mu.Lock()
	ring := make([]jumpSample, len(d.rings[symbol]))
	copy(ring, d.rings[symbol])
	d.mu.Unlock()

	if len(ring) < d.cfg.HistoryNum {
		return none
	}

	now := float64(d.nowFn().UnixNano()) / 1e9
	newest := ring[len(ring)-1]
	newestAge := now - newest.ts()
	if newestAge > d.cfg.MaxAge.Seconds() {
		d.log.Debug("jump check skipped: stale samples",
			logger.String("symbol", symbol),
			logger.Float64("age_sec", newestAge))
		return none
	}
	if newestAge < -d.cfg.SkewAllowance.Seconds() {
		return none
	}

	minSec := d.cfg.PollInterval.Seconds()
	maxSec := minSec * float64(d.cfg.HistoryNum)
	cur := newest.price

	res := none
	inWindow := false
	minDelta, maxDelta := math.MaxFloat64, 0.0

	for _, s := range ring[:len(ring)-1] {
		delta := now - s.ts()
		if delta > d.cfg.MaxAge.Seconds() || delta < -d.cfg.SkewAllowance.Seconds() {
			continue
		}
		if delta < minSec || delta > maxSec {
			continue
		}
		inWindow = true
		if delta < minDelta {
			minDelta = delta
		}
		if delta > maxDelta {
			maxDelta = delta
		}
		change := (cur - s.price) / s.price
		if math.Abs(change) >= *jumpPct && math.Abs(change) > math.Abs(res.Change) {
			res.Change = change
			if change > 0 {
				res.State = models.JumpUp
			} else {
				res.State = models.JumpDown
			}
		}
	}

	if res.State == models.JumpNone {
		if !inWindow {
			return none
		}
		res.State = models.JumpWatched
	}
	res.MinDelta = minDelta
	res.MaxDelta = maxDelta
	return res
}
