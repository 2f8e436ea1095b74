package repository

import (
	"context"
	"time"

	"TradePulse/internal/domain/models"
)

// PriceFeed is the narrow market-data contract the core consumes. A nil
// price means "no data yet, skip this symbol this tick".
type PriceFeed interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Price(symbol string) *float64
	LastExchangeTs(symbol string) *float64
	// LastConfirmedBar returns the most recent exchange-confirmed bar, or
	// nil when none has arrived since the previous call consumed it.
	LastConfirmedBar(symbol string) *models.Candle
	Close() error
}

// Broker submits and tracks market orders. One concrete adapter per
// exchange implements this set; the core never depends on adapter internals.
type Broker interface {
	SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, qty float64, reduceOnly bool) (models.OrderResult, error)
	OrderStatus(ctx context.Context, symbol, orderID string) (models.FillStatus, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	Positions(ctx context.Context, symbol string) ([]models.PositionSnapshot, error)
}

// KlineBackfill is an optional broker capability: fetch recent confirmed
// bars over REST to warm the candle ring at startup. Checked once at wiring
// time, never per call.
type KlineBackfill func(ctx context.Context, symbol string, limit int) ([]models.Candle, error)

// LedgerStore is the durable record of open lots and their indexes. All
// multi-key writes inside one call are atomic.
type LedgerStore interface {
	// OpenLot allocates a lot id, writes the record, indexes it into the
	// (symbol, side) open-set ordered by entry time and, when an origin
	// signal id is given, records the signal->lot correlation.
	OpenLot(ctx context.Context, lot models.Lot) (models.Lot, error)
	// CloseLot removes the lot, its open-set membership and any signal
	// correlation. Returns false without error when the lot does not exist.
	CloseLot(ctx context.Context, lotID string) (bool, error)
	PickOpenLotIDs(ctx context.Context, symbol string, side models.Side, policy models.PickPolicy, limit int) ([]string, error)
	LoadOpenLots(ctx context.Context, symbol string, side models.Side) ([]models.Lot, error)
	GetLot(ctx context.Context, lotID string) (*models.Lot, error)
	// PutSnapshot / GetSnapshot are the KV primitive for configuration and
	// position snapshots.
	PutSnapshot(ctx context.Context, key string, value any) error
	GetSnapshot(ctx context.Context, key string, dest any) error
	Close() error
}

// TradeHistory is the append-only record of executed trades.
type TradeHistory interface {
	Append(ctx context.Context, t models.ExecutedTrade) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.ExecutedTrade, error)
	Close() error
}

// EventPublisher fans executed-fill events out to downstream consumers.
// Implementations must be safe to skip (wired as nil when unconfigured).
type EventPublisher interface {
	PublishFill(ctx context.Context, t models.ExecutedTrade) error
	Close() error
}

// Metrics records operational metrics. Implemented by pkg/metrics.
type Metrics interface {
	RecordTick(symbol string)
	RecordLastPrice(symbol string, price float64)
	RecordOrder(symbol, kind, outcome string)
	RecordOpenLots(symbol string, side string, n int)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
