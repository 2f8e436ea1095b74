package models

import "time"

// Tick is a single price observation from the feed.
type Tick struct {
	Symbol     string
	Price      float64
	ExchangeTs float64 // exchange timestamp, unix seconds (fractional)
	ReceivedTs float64 // local receipt timestamp, unix seconds (fractional)
}

// Candle is one fixed-duration OHLC bar. Minute is the bar's bucket index
// (unix seconds / 60). A bar is mutable while its minute is open and
// immutable once confirmed by the exchange.
type Candle struct {
	Minute int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
}

// StartTime returns the bar's opening wall-clock time.
func (c Candle) StartTime() time.Time {
	return time.Unix(c.Minute*60, 0)
}

// TypicalPrice is the HLC average used as the indicator input series.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// IndicatorState is the published per-symbol indicator snapshot. It is
// replaced wholesale by the indicator engine on each confirmed bar; readers
// treat it as immutable.
type IndicatorState struct {
	Symbol            string
	MASeries          []*float64 // nil before the window is filled
	CurrentMA         *float64
	RawThreshold      float64
	Threshold         float64 // quantized
	MomentumThreshold float64
	ReferenceCandle   *Candle // previous confirmed bar, momentum reference
	UpdatedAt         time.Time
}

// JumpState classifies the outcome of a jump check.
type JumpState int

const (
	JumpNone JumpState = iota
	JumpWatched
	JumpUp
	JumpDown
)

func (s JumpState) String() string {
	switch s {
	case JumpWatched:
		return "watched"
	case JumpUp:
		return "up"
	case JumpDown:
		return "down"
	default:
		return "none"
	}
}

// JumpResult carries the directional flag plus the time-delta range of the
// samples that were inside the comparison window.
type JumpResult struct {
	State    JumpState
	Change   float64 // relative change that triggered the flag
	MinDelta float64 // seconds
	MaxDelta float64 // seconds
}
