package di

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/domain/repository"
	"TradePulse/internal/execution"
	"TradePulse/internal/handler/api"
	"TradePulse/internal/ledger"
	"TradePulse/internal/market"
	internalrepo "TradePulse/internal/repository"
	svcbinance "TradePulse/internal/service/binance"
	svcpaper "TradePulse/internal/service/paper"
	"TradePulse/internal/strategy"
	"TradePulse/internal/usecase"
	"TradePulse/pkg/cache"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	pkgkafka "TradePulse/pkg/kafka"
	applogger "TradePulse/pkg/logger"
	"TradePulse/pkg/metrics"
	pkgredis "TradePulse/pkg/redis"
	"TradePulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates a Redis client, or nil when the ledger runs in
// memory.
func ProvideRedisClient(cfg *config.Config) (*pkgredis.Client, error) {
	if cfg.Ledger.Type != "redis" {
		return nil, nil
	}
	client, err := pkgredis.NewClient(
		pkgredis.WithAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgredis.WithCredentials(cfg.Redis.Password),
		pkgredis.WithDB(cfg.Redis.DB),
		pkgredis.WithPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideLedgerStore creates the durable ledger store for the configured
// backend.
func ProvideLedgerStore(cfg *config.Config, rdb *pkgredis.Client, log *applogger.Logger) repository.LedgerStore {
	if rdb == nil {
		return ledger.NewMemoryStore()
	}
	return ledger.NewRedisStore(rdb.RDB(), cfg.Ledger.Prefix, log)
}

// ProvideClickHouseClient creates a ClickHouse client with the trade
// history schema applied, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.HistorySchema("trades")); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTradeHistory creates the ClickHouse trade history, or nil when
// ClickHouse is disabled.
func ProvideTradeHistory(chClient *pkgch.Client) repository.TradeHistory {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseHistory(chClient.DB(), "trades")
}

// ProvideKafkaProducer creates a Kafka producer, or nil without brokers.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the Kafka fill-event publisher, or nil when
// Kafka is unconfigured.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEvents(producer, cfg.Kafka.FillsTopic)
}

// ProvideCache creates the in-memory TTL cache for position snapshots.
func ProvideCache() cache.Service {
	return cache.NewMemory(time.Minute)
}

// ProvideFeed creates the market-data feed. Paper mode still streams real
// public market data; only order execution is simulated.
func ProvideFeed(cfg *config.Config, log *applogger.Logger) repository.PriceFeed {
	return svcbinance.NewFeed(cfg.Exchange.Testnet, log)
}

// ProvideBroker creates the order broker for the configured exchange.
func ProvideBroker(cfg *config.Config, feed repository.PriceFeed, log *applogger.Logger) repository.Broker {
	if cfg.Exchange.Name == "paper" {
		return svcpaper.NewBroker(feed, log)
	}
	return svcbinance.NewBroker(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet, log)
}

// ProvideCandleEngine creates the per-symbol candle ring.
func ProvideCandleEngine(cfg *config.Config, log *applogger.Logger) *market.CandleEngine {
	return market.NewCandleEngine(cfg.Engine.CandleCapacity, log)
}

// ProvideIndicatorEngine creates the MA/threshold indicator engine.
func ProvideIndicatorEngine(cfg *config.Config, log *applogger.Logger) *market.IndicatorEngine {
	return market.NewIndicatorEngine(market.IndicatorConfig{
		Window:           cfg.Indicator.MAWindow,
		MinThreshold:     cfg.Indicator.MinThreshold,
		MaxThreshold:     cfg.Indicator.MaxThreshold,
		TargetCross:      cfg.Indicator.TargetCross,
		CrossGapBars:     cfg.Indicator.CrossGapBars,
		QuantizeDecimals: cfg.Indicator.QuantizeDecimals,
		MomentumFraction: cfg.Indicator.MomentumFraction,
	}, log)
}

// ProvideJumpDetector creates the abrupt-move detector.
func ProvideJumpDetector(cfg *config.Config, log *applogger.Logger) *market.JumpDetector {
	return market.NewJumpDetector(market.JumpConfig{
		HistoryNum:    cfg.Jump.HistoryNum,
		PollInterval:  cfg.Jump.PollInterval,
		MaxAge:        cfg.Jump.MaxAge,
		SkewAllowance: cfg.Jump.SkewAllowance,
	}, log)
}

// ProvideStrategyEngine creates the decision engine.
func ProvideStrategyEngine(cfg *config.Config, log *applogger.Logger) *strategy.Engine {
	return strategy.NewEngine(strategy.Params{
		MaxOpen:          cfg.Strategy.MaxOpen,
		EasingFraction:   cfg.Strategy.EasingFraction,
		WatchWindow:      cfg.Strategy.WatchWindow,
		ReentryCooldown:  cfg.Strategy.ReentryCooldown,
		TimeLimit:        cfg.Strategy.TimeLimit,
		NearWindow:       cfg.Strategy.NearWindow,
		ScaleOutCooldown: cfg.Strategy.ScaleOutCooldown,
		RiskControlPct:   cfg.Strategy.RiskControlPct,
	}, log)
}

// ProvideLotsIndex creates the in-memory open-lots index.
func ProvideLotsIndex() *ledger.LotsIndex {
	return ledger.NewLotsIndex()
}

// ProvideSignalsIndex creates the pending-signals index.
func ProvideSignalsIndex() *ledger.OpenSignalsIndex {
	return ledger.NewOpenSignalsIndex()
}

// ProvideExecutionEngine creates the execution engine.
func ProvideExecutionEngine(
	cfg *config.Config,
	broker repository.Broker,
	store repository.LedgerStore,
	lots *ledger.LotsIndex,
	signals *ledger.OpenSignalsIndex,
	history repository.TradeHistory,
	events repository.EventPublisher,
	cacheSvc cache.Service,
	m repository.Metrics,
	log *applogger.Logger,
) *execution.Engine {
	return execution.NewEngine(execution.Config{
		OrderQty:     cfg.Execution.OrderQty,
		FillChecks:   cfg.Execution.FillChecks,
		FillInterval: cfg.Execution.FillInterval,
		TakerFee:     cfg.Execution.TakerFee,
		Cooldown:     cfg.Execution.Cooldown,
	}, execution.Deps{
		Broker:  broker,
		Store:   store,
		Lots:    lots,
		Signals: signals,
		History: history,
		Events:  events,
		Cache:   cacheSvc,
		Metrics: m,
	}, log)
}

// ProvideTickRunner creates the per-tick pipeline.
func ProvideTickRunner(
	cfg *config.Config,
	feed repository.PriceFeed,
	candles *market.CandleEngine,
	indicator *market.IndicatorEngine,
	jump *market.JumpDetector,
	strat *strategy.Engine,
	exec *execution.Engine,
	lots *ledger.LotsIndex,
	signals *ledger.OpenSignalsIndex,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.TickRunner {
	return usecase.NewTickRunner(feed, candles, indicator, jump, strat, exec,
		lots, signals, m, cfg.Jump.JumpPct, log)
}

// ProvidePositionSync creates the periodic reconciliation job.
func ProvidePositionSync(
	cfg *config.Config,
	store repository.LedgerStore,
	lots *ledger.LotsIndex,
	broker repository.Broker,
	cacheSvc cache.Service,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.PositionSync {
	return usecase.NewPositionSync(store, lots, broker, cacheSvc, m, cfg.Symbols, log)
}

// ProvideStatusHandler creates the HTTP status handler.
func ProvideStatusHandler(
	log *applogger.Logger,
	indicator *market.IndicatorEngine,
	lots *ledger.LotsIndex,
	feed repository.PriceFeed,
	history repository.TradeHistory,
) *api.StatusHandler {
	return api.NewStatusHandler(log, indicator, lots, feed, history)
}

// ProvideApp assembles the application host, wiring the optional backfill
// capability and infrastructure closers.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	feed repository.PriceFeed,
	runner *usecase.TickRunner,
	positionSync *usecase.PositionSync,
	candles *market.CandleEngine,
	indicator *market.IndicatorEngine,
	handler *api.StatusHandler,
	broker repository.Broker,
	store repository.LedgerStore,
	rdb *pkgredis.Client,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	app := server.New(cfg, log, feed, runner, positionSync, candles, indicator)
	app.SetHTTPHandler(handler)
	if b, ok := broker.(*svcbinance.Broker); ok {
		app.SetBackfill(b.Klines)
	}

	app.AddCloser(store)
	if producer != nil {
		app.AddCloser(producer)
	}
	if chClient != nil {
		app.AddCloser(chClient)
	}
	if rdb != nil {
		app.AddCloser(rdb)
	}
	return app
}
