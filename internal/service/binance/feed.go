package binance

import (
	"context"
	"strconv"
	"sync"

	"github.com/adshao/go-binance/v2/futures"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Feed consumes the per-symbol 1m kline WebSocket stream. Each event
// updates the shared price/timestamp state the tick loop polls; a final
// kline is parked as the confirmed bar until the next read consumes it.
// The stream never drives strategy logic directly.
type Feed struct {
	mu        sync.RWMutex
	prices    map[string]float64
	exTs      map[string]float64
	confirmed map[string]*models.Candle
	stops     []chan struct{}
	log       *logger.Logger
}

// NewFeed creates a Binance futures kline feed.
func NewFeed(testnet bool, log *logger.Logger) *Feed {
	if testnet {
		futures.UseTestnet = true
	}
	return &Feed{
		prices:    make(map[string]float64),
		exTs:      make(map[string]float64),
		confirmed: make(map[string]*models.Candle),
		log:       log,
	}
}

var _ repository.PriceFeed = (*Feed)(nil)

// Connect is a no-op: streams are established per symbol in Subscribe.
func (f *Feed) Connect(context.Context) error { return nil }

// Subscribe opens one kline stream per symbol. The library reconnects on
// keepalive failure; stream errors are logged and tolerated.
func (f *Feed) Subscribe(_ context.Context, symbols []string) error {
	for _, symbol := range symbols {
		symbol := symbol
		_, stopC, err := futures.WsKlineServe(symbol, "1m",
			func(event *futures.WsKlineEvent) { f.onKline(event) },
			func(err error) {
				f.log.Warn("kline stream error",
					logger.String("symbol", symbol), logger.Error(err))
			})
		if err != nil {
			f.Close()
			return err
		}
		f.mu.Lock()
		f.stops = append(f.stops, stopC)
		f.mu.Unlock()
		f.log.Info("subscribed kline stream", logger.String("symbol", symbol))
	}
	return nil
}

func (f *Feed) onKline(event *futures.WsKlineEvent) {
	price, err := strconv.ParseFloat(event.Kline.Close, 64)
	if err != nil || price <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.prices[event.Symbol] = price
	f.exTs[event.Symbol] = float64(event.Time) / 1000

	if event.Kline.IsFinal {
		open, _ := strconv.ParseFloat(event.Kline.Open, 64)
		high, _ := strconv.ParseFloat(event.Kline.High, 64)
		low, _ := strconv.ParseFloat(event.Kline.Low, 64)
		f.confirmed[event.Symbol] = &models.Candle{
			Minute: event.Kline.StartTime / 60_000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
		}
	}
}

// Price returns the last traded price, or nil before the first event.
func (f *Feed) Price(symbol string) *float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[symbol]
	if !ok {
		return nil
	}
	return &p
}

// LastExchangeTs returns the exchange timestamp of the last event in unix
// seconds, or nil before the first event.
func (f *Feed) LastExchangeTs(symbol string) *float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ts, ok := f.exTs[symbol]
	if !ok {
		return nil
	}
	return &ts
}

// LastConfirmedBar returns the most recent exchange-confirmed bar and
// consumes it, so each bar is applied exactly once.
func (f *Feed) LastConfirmedBar(symbol string) *models.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()
	bar := f.confirmed[symbol]
	delete(f.confirmed, symbol)
	return bar
}

// Close stops all streams.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stop := range f.stops {
		close(stop)
	}
	f.stops = nil
	return nil
}
