package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradePulse/internal/domain/repository"
	"TradePulse/internal/market"
	"TradePulse/internal/usecase"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	applogger "TradePulse/pkg/logger"
)

// App encapsulates the trading-instance lifecycle: feed connection, candle
// backfill, the per-interval tick loop, the position-sync loop and the HTTP
// surface, torn down in reverse on SIGINT/SIGTERM.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	feed      repository.PriceFeed
	runner    *usecase.TickRunner
	sync      *usecase.PositionSync
	candles   *market.CandleEngine
	indicator *market.IndicatorEngine

	backfill    repository.KlineBackfill
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	closers     []io.Closer
}

// New creates the application host.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	feed repository.PriceFeed,
	runner *usecase.TickRunner,
	positionSync *usecase.PositionSync,
	candles *market.CandleEngine,
	indicator *market.IndicatorEngine,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		feed:      feed,
		runner:    runner,
		sync:      positionSync,
		candles:   candles,
		indicator: indicator,
	}
}

// SetHTTPHandler injects the HTTP route registrar.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetBackfill injects the optional REST kline backfill capability. Checked
// once here, never per call.
func (a *App) SetBackfill(fn repository.KlineBackfill) { a.backfill = fn }

// AddCloser registers an infrastructure handle to close at shutdown, in
// reverse registration order.
func (a *App) AddCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.feed.Connect(ctx); err != nil {
		return err
	}
	if err := a.feed.Subscribe(ctx, a.cfg.Symbols); err != nil {
		return err
	}
	a.log.Info("feed subscribed", applogger.Strings("symbols", a.cfg.Symbols))

	a.warmCandles(ctx)

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	go a.sync.Run(ctx, a.cfg.Engine.SyncInterval)
	go a.tickLoop(ctx)
	a.log.Info("tick loop started",
		applogger.Duration("interval", a.cfg.Engine.TickInterval))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// warmCandles seeds the candle ring over REST so indicators have data
// before live bars accumulate.
func (a *App) warmCandles(ctx context.Context) {
	if a.backfill == nil || a.cfg.Engine.BackfillBars <= 0 {
		return
	}
	for _, symbol := range a.cfg.Symbols {
		bars, err := a.backfill(ctx, symbol, a.cfg.Engine.BackfillBars)
		if err != nil {
			a.log.Warn("kline backfill failed",
				applogger.String("symbol", symbol), applogger.Error(err))
			continue
		}
		for _, bar := range bars {
			a.candles.ApplyConfirmed(symbol, bar)
		}
		a.indicator.ComputeAll(symbol, a.candles.Candles(symbol))
		a.log.Info("candles backfilled",
			applogger.String("symbol", symbol), applogger.Int("bars", len(bars)))
	}
}

func (a *App) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Engine.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range a.cfg.Symbols {
				a.runner.RunOnce(ctx, symbol)
			}
		}
	}
}

// shutdown stops the HTTP server, the feed and every registered
// infrastructure handle.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if err := a.feed.Close(); err != nil {
		a.log.Warn("feed close error", applogger.Error(err))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
