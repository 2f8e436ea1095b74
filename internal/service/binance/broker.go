package binance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Broker adapts the Binance USD-M futures REST API to the order contract.
// Side plus reduce-only fully determines the exchange order side: a
// reduce-only long closes by selling, a reduce-only short by buying.
type Broker struct {
	client *futures.Client
	log    *logger.Logger
}

// NewBroker creates a Binance futures broker.
func NewBroker(apiKey, apiSecret string, testnet bool, log *logger.Logger) *Broker {
	if testnet {
		futures.UseTestnet = true
	}
	return &Broker{
		client: binance.NewFuturesClient(apiKey, apiSecret),
		log:    log,
	}
}

var _ repository.Broker = (*Broker)(nil)

func orderSide(side models.Side, reduceOnly bool) futures.SideType {
	buy := side == models.SideLong
	if reduceOnly {
		buy = !buy
	}
	if buy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func (b *Broker) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, qty float64, reduceOnly bool) (models.OrderResult, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(orderSide(side, reduceOnly)).
		Type(futures.OrderTypeMarket).
		Quantity(strconv.FormatFloat(qty, 'f', -1, 64))
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("create order %s: %w", symbol, err)
	}
	return models.OrderResult{OrderID: strconv.FormatInt(order.OrderID, 10)}, nil
}

func (b *Broker) OrderStatus(ctx context.Context, symbol, orderID string) (models.FillStatus, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return models.FillStatus{}, fmt.Errorf("parse order id %q: %w", orderID, err)
	}
	order, err := b.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return models.FillStatus{}, fmt.Errorf("get order %s/%s: %w", symbol, orderID, err)
	}

	avg, _ := strconv.ParseFloat(order.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	return models.FillStatus{
		Status:    string(order.Status),
		AvgPrice:  avg,
		FilledQty: filled,
	}, nil
}

func (b *Broker) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse order id %q: %w", orderID, err)
	}
	if _, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx); err != nil {
		return fmt.Errorf("cancel order %s/%s: %w", symbol, orderID, err)
	}
	return nil
}

func (b *Broker) Positions(ctx context.Context, symbol string) ([]models.PositionSnapshot, error) {
	risks, err := b.client.NewGetPositionRiskV3Service().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("position risk %s: %w", symbol, err)
	}

	var out []models.PositionSnapshot
	for _, p := range risks {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		side := models.SideLong
		if amt < 0 {
			side = models.SideShort
			amt = -amt
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		unreal, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		out = append(out, models.PositionSnapshot{
			Symbol:      p.Symbol,
			Side:        side,
			Qty:         amt,
			EntryPrice:  entry,
			UnrealizedP: unreal,
			UpdatedMs:   p.UpdateTime,
		})
	}
	return out, nil
}

// Klines fetches recent confirmed 1m bars over REST. Exposed as the
// optional backfill capability.
func (b *Broker) Klines(ctx context.Context, symbol string, limit int) ([]models.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval("1m").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", symbol, err)
	}

	bars := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		cls, _ := strconv.ParseFloat(k.Close, 64)
		bars = append(bars, models.Candle{
			Minute: k.OpenTime / 60_000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cls,
		})
	}
	return bars, nil
}
