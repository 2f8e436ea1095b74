package models

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// PickPolicy selects the ordering used when choosing open lots.
type PickPolicy string

const (
	PickFIFO PickPolicy = "fifo"
	PickLIFO PickPolicy = "lifo"
)

// Lot is one confirmed, still-open position entry with its own basis price
// and timestamp. A lot exists from entry-fill confirmation until its
// governing exit is confirmed filled.
type Lot struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Side           Side    `json:"side"`
	EntryTsMs      int64   `json:"entry_ts_ms"`
	EntryPrice     float64 `json:"entry_price"`
	Qty            float64 `json:"qty"`
	OriginSignalID string  `json:"origin_signal_id,omitempty"`
	ExchangeLotID  string  `json:"exchange_lot_id,omitempty"`
	Tag            string  `json:"tag,omitempty"` // entry mode that opened the lot
}

// SignalKind distinguishes entry from exit signals.
type SignalKind string

const (
	SignalEntry SignalKind = "entry"
	SignalExit  SignalKind = "exit"
)

// OpenSignal is a recorded trading decision not yet confirmed as a filled
// lot. It is recorded before order submission so the strategy can reason
// about pending and filled positions uniformly.
type OpenSignal struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Side        Side       `json:"side"`
	Kind        SignalKind `json:"kind"`
	Price       float64    `json:"price"`
	TimestampMs int64      `json:"timestamp_ms"`
	Tag         string     `json:"tag,omitempty"`
}

// ActionKind is the verb of a trade action.
type ActionKind string

const (
	ActionEntry ActionKind = "entry"
	ActionExit  ActionKind = "exit"
)

// Strategy mode names. Each emitted action carries the branch that decided it.
const (
	ModeInit        = "INIT"
	ModeInit2       = "INIT2"
	ModeInit3       = "INIT3"
	ModeScaleIn     = "SCALE_IN"
	ModeTimeLimit   = "TIME_LIMIT"
	ModeStopLoss    = "STOP_LOSS"
	ModeTakeProfit  = "TAKE_PROFIT"
	ModeRiskControl = "RISK_CONTROL"
	ModeNormal      = "NORMAL"
	ModeScaleOut    = "SCALE_OUT"
	ModeInitOut     = "INIT_OUT"
	ModeNearTouch   = "NEAR_TOUCH"
)

// TradeAction is a decided entry or exit. It is ephemeral: produced by the
// strategy, consumed once by the execution engine, persisted only through
// its lot/signal effects.
type TradeAction struct {
	Kind         ActionKind
	Symbol       string
	Side         Side
	Price        float64
	Mode         string
	TargetLotIDs []string // exit only
	TargetPos    []int    // 1-based positions among open items, audit trail
	Reason       string
}

// OrderResult is what the broker returns on submission.
type OrderResult struct {
	OrderID string
}

// FillStatus reports the state of a submitted order.
type FillStatus struct {
	Status    string // NEW, PARTIALLY_FILLED, FILLED, CANCELED, REJECTED, EXPIRED
	AvgPrice  float64
	FilledQty float64
}

// Filled reports whether the order completed.
func (f FillStatus) Filled() bool { return f.Status == "FILLED" }

// Terminal reports whether no further fill can happen.
func (f FillStatus) Terminal() bool {
	switch f.Status {
	case "FILLED", "CANCELED", "REJECTED", "EXPIRED":
		return true
	}
	return false
}

// ExecutedTrade is one confirmed fill appended to the durable history.
type ExecutedTrade struct {
	Symbol      string
	Side        Side
	Kind        ActionKind
	Mode        string
	Price       float64
	Qty         float64
	PnL         float64 // realized, net of fee estimate; zero for entries
	Fee         float64
	OrderID     string
	LotIDs      []string
	TimestampMs int64
}

// PositionSnapshot is the cached exchange-side view refreshed after fills
// and by the periodic sync job.
type PositionSnapshot struct {
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Qty         float64 `json:"qty"`
	EntryPrice  float64 `json:"entry_price"`
	UnrealizedP float64 `json:"unrealized_pnl"`
	UpdatedMs   int64   `json:"updated_ms"`
}
