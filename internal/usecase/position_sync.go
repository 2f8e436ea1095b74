package usecase

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/ledger"
	"TradePulse/pkg/cache"
	"TradePulse/pkg/logger"
)

// PositionSync is the periodic reconciliation job: it reloads the in-memory
// lots index from the durable store and refreshes the cached broker position
// snapshots. Divergence between cache and store is logged as a warning, not
// repaired beyond the rebuild itself.
type PositionSync struct {
	store   repository.LedgerStore
	lots    *ledger.LotsIndex
	broker  repository.Broker
	cache   cache.Service
	metrics repository.Metrics
	log     *logger.Logger
	symbols []string
}

// NewPositionSync creates the sync job.
func NewPositionSync(
	store repository.LedgerStore,
	lots *ledger.LotsIndex,
	broker repository.Broker,
	cacheSvc cache.Service,
	metrics repository.Metrics,
	symbols []string,
	log *logger.Logger,
) *PositionSync {
	return &PositionSync{
		store:   store,
		lots:    lots,
		broker:  broker,
		cache:   cacheSvc,
		metrics: metrics,
		symbols: symbols,
		log:     log,
	}
}

// Run executes SyncOnce on the given interval until the context ends. The
// first sync runs immediately so the index is trustworthy from startup.
func (s *PositionSync) Run(ctx context.Context, interval time.Duration) {
	if err := s.SyncOnce(ctx); err != nil {
		s.log.Error("initial position sync failed", logger.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.log.Error("position sync failed", logger.Error(err))
			}
		}
	}
}

// SyncOnce rebuilds the lots index from the store and refreshes position
// snapshots for every symbol.
func (s *PositionSync) SyncOnce(ctx context.Context) error {
	before := s.countAll()

	if err := s.lots.Rebuild(ctx, s.store, s.symbols); err != nil {
		return fmt.Errorf("rebuild lots index: %w", err)
	}

	after := s.countAll()
	for key, n := range after {
		if before[key] != n {
			s.log.Warn("ledger cache diverged from store",
				logger.String("book", key),
				logger.Int("cached", before[key]),
				logger.Int("stored", n))
		}
	}

	for _, symbol := range s.symbols {
		s.refreshPositions(ctx, symbol)
		if s.metrics != nil {
			s.metrics.RecordOpenLots(symbol, string(models.SideLong), s.lots.Count(symbol, models.SideLong))
			s.metrics.RecordOpenLots(symbol, string(models.SideShort), s.lots.Count(symbol, models.SideShort))
		}
	}
	return nil
}

func (s *PositionSync) countAll() map[string]int {
	counts := make(map[string]int, 2*len(s.symbols))
	for _, symbol := range s.symbols {
		for _, side := range []models.Side{models.SideLong, models.SideShort} {
			counts[symbol+"|"+string(side)] = s.lots.Count(symbol, side)
		}
	}
	return counts
}

func (s *PositionSync) refreshPositions(ctx context.Context, symbol string) {
	positions, err := s.broker.Positions(ctx, symbol)
	if err != nil {
		s.log.Warn("broker positions fetch failed",
			logger.String("symbol", symbol), logger.Error(err))
		return
	}
	for _, pos := range positions {
		key := fmt.Sprintf("pos:%s:%s", pos.Symbol, pos.Side)
		if err := s.store.PutSnapshot(ctx, key, pos); err != nil {
			s.log.Warn("persist position snapshot failed",
				logger.String("symbol", symbol), logger.Error(err))
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, pos, 10*time.Minute)
		}
	}
}
