package paper

import (
	"context"
	"fmt"
	"sync"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Broker simulates order execution for dry runs. Market orders fill
// instantly at the feed's last price; nothing leaves the process.
type Broker struct {
	mu     sync.Mutex
	feed   repository.PriceFeed
	log    *logger.Logger
	nextID int64
	fills  map[string]models.FillStatus
}

// NewBroker creates a paper broker priced off the given feed.
func NewBroker(feed repository.PriceFeed, log *logger.Logger) *Broker {
	return &Broker{
		feed:  feed,
		log:   log,
		fills: make(map[string]models.FillStatus),
	}
}

var _ repository.Broker = (*Broker)(nil)

func (b *Broker) SubmitMarketOrder(_ context.Context, symbol string, side models.Side, qty float64, reduceOnly bool) (models.OrderResult, error) {
	price := b.feed.Price(symbol)
	if price == nil {
		return models.OrderResult{}, fmt.Errorf("paper fill %s: no price yet", symbol)
	}

	b.mu.Lock()
	b.nextID++
	orderID := fmt.Sprintf("paper-%d", b.nextID)
	b.fills[orderID] = models.FillStatus{
		Status:    "FILLED",
		AvgPrice:  *price,
		FilledQty: qty,
	}
	b.mu.Unlock()

	b.log.Info("paper order filled",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.String("order_id", orderID),
		logger.Float64("price", *price),
		logger.Float64("qty", qty),
		logger.Bool("reduce_only", reduceOnly))
	return models.OrderResult{OrderID: orderID}, nil
}

func (b *Broker) OrderStatus(_ context.Context, _, orderID string) (models.FillStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.fills[orderID]
	if !ok {
		return models.FillStatus{}, fmt.Errorf("unknown paper order %s", orderID)
	}
	return status, nil
}

func (b *Broker) CancelOrder(_ context.Context, _, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.fills, orderID)
	return nil
}

// Positions reports nothing: the ledger is the source of truth in paper
// mode.
func (b *Broker) Positions(context.Context, string) ([]models.PositionSnapshot, error) {
	return nil, nil
}
