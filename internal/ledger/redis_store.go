package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// RedisStore is the durable ledger backed by Redis. Lot records are JSON
// values, per (symbol, side) open-sets are sorted sets scored by entry time
// and signal->lot correlations are plain keys. Every transition runs as one
// MULTI/EXEC pipeline so the three writes land atomically.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	log    *logger.Logger
}

// NewRedisStore creates a Redis-backed ledger store.
func NewRedisStore(rdb *redis.Client, prefix string, log *logger.Logger) *RedisStore {
	if prefix == "" {
		prefix = "tradepulse"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, log: log}
}

var _ repository.LedgerStore = (*RedisStore)(nil)

func (s *RedisStore) lotKey(id string) string { return s.prefix + ":lot:" + id }

func (s *RedisStore) openKey(symbol string, side models.Side) string {
	return fmt.Sprintf("%s:open:%s:%s", s.prefix, symbol, side)
}

func (s *RedisStore) sigKey(signalID string) string { return s.prefix + ":sig:" + signalID }

func (s *RedisStore) snapKey(key string) string { return s.prefix + ":snap:" + key }

// OpenLot allocates an id, writes the lot record, scores it into the
// open-set by entry time and records the signal correlation, atomically.
func (s *RedisStore) OpenLot(ctx context.Context, lot models.Lot) (models.Lot, error) {
	lot.ID = uuid.NewString()
	data, err := json.Marshal(lot)
	if err != nil {
		return models.Lot{}, fmt.Errorf("marshal lot: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.lotKey(lot.ID), data, 0)
	pipe.ZAdd(ctx, s.openKey(lot.Symbol, lot.Side), redis.Z{
		Score:  float64(lot.EntryTsMs),
		Member: lot.ID,
	})
	if lot.OriginSignalID != "" {
		pipe.Set(ctx, s.sigKey(lot.OriginSignalID), lot.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Lot{}, fmt.Errorf("open lot tx: %w", err)
	}
	return lot, nil
}

// CloseLot removes the lot record, its open-set membership and any signal
// correlation as one transaction. Returns false when the lot is unknown.
func (s *RedisStore) CloseLot(ctx context.Context, lotID string) (bool, error) {
	data, err := s.rdb.Get(ctx, s.lotKey(lotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lot: %w", err)
	}
	var lot models.Lot
	if err := json.Unmarshal(data, &lot); err != nil {
		return false, fmt.Errorf("unmarshal lot %s: %w", lotID, err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, s.openKey(lot.Symbol, lot.Side), lotID)
	pipe.Del(ctx, s.lotKey(lotID))
	if lot.OriginSignalID != "" {
		pipe.Del(ctx, s.sigKey(lot.OriginSignalID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("close lot tx: %w", err)
	}
	return true, nil
}

// PickOpenLotIDs returns open lot ids oldest-first (FIFO) or newest-first
// (LIFO), optionally capped by limit.
func (s *RedisStore) PickOpenLotIDs(ctx context.Context, symbol string, side models.Side, policy models.PickPolicy, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	key := s.openKey(symbol, side)
	if policy == models.PickLIFO {
		return s.rdb.ZRevRange(ctx, key, 0, stop).Result()
	}
	return s.rdb.ZRange(ctx, key, 0, stop).Result()
}

// LoadOpenLots returns the full lot records for a (symbol, side) open-set,
// oldest-first. Used to rebuild the in-memory index at startup.
func (s *RedisStore) LoadOpenLots(ctx context.Context, symbol string, side models.Side) ([]models.Lot, error) {
	ids, err := s.rdb.ZRange(ctx, s.openKey(symbol, side), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("scan open-set: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.lotKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load lots: %w", err)
	}

	lots := make([]models.Lot, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index member without a record: recoverable divergence
			s.log.Warn("open-set references missing lot",
				logger.String("symbol", symbol),
				logger.String("lot_id", ids[i]))
			continue
		}
		var lot models.Lot
		if err := json.Unmarshal([]byte(str), &lot); err != nil {
			return nil, fmt.Errorf("unmarshal lot %s: %w", ids[i], err)
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// GetLot returns the lot record, or nil when absent.
func (s *RedisStore) GetLot(ctx context.Context, lotID string) (*models.Lot, error) {
	data, err := s.rdb.Get(ctx, s.lotKey(lotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lot: %w", err)
	}
	var lot models.Lot
	if err := json.Unmarshal(data, &lot); err != nil {
		return nil, fmt.Errorf("unmarshal lot %s: %w", lotID, err)
	}
	return &lot, nil
}

// PutSnapshot stores a JSON snapshot under the given key.
func (s *RedisStore) PutSnapshot(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.rdb.Set(ctx, s.snapKey(key), data, 0).Err()
}

// GetSnapshot loads a JSON snapshot into dest.
func (s *RedisStore) GetSnapshot(ctx context.Context, key string, dest any) error {
	data, err := s.rdb.Get(ctx, s.snapKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrSnapshotMissing
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Close is a no-op: the Redis client lifecycle belongs to pkg/redis.
func (s *RedisStore) Close() error { return nil }
