package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
)

// ErrSnapshotMissing is returned when a snapshot key has never been written.
var ErrSnapshotMissing = errors.New("snapshot missing")

// MemoryStore implements the ledger contract with mutex-protected maps.
// Used for paper trading and tests; semantics match RedisStore exactly.
type MemoryStore struct {
	mu    sync.Mutex
	lots  map[string]models.Lot
	open  map[string][]string // (symbol|side) -> lot ids ordered by entry ts
	sigs  map[string]string   // signal id -> lot id
	snaps map[string][]byte
}

// NewMemoryStore creates an in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lots:  make(map[string]models.Lot),
		open:  make(map[string][]string),
		sigs:  make(map[string]string),
		snaps: make(map[string][]byte),
	}
}

var _ repository.LedgerStore = (*MemoryStore)(nil)

func openSetKey(symbol string, side models.Side) string {
	return symbol + "|" + string(side)
}

func (s *MemoryStore) OpenLot(_ context.Context, lot models.Lot) (models.Lot, error) {
	lot.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lots[lot.ID] = lot
	key := openSetKey(lot.Symbol, lot.Side)
	ids := append(s.open[key], lot.ID)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.lots[ids[i]].EntryTsMs < s.lots[ids[j]].EntryTsMs
	})
	s.open[key] = ids
	if lot.OriginSignalID != "" {
		s.sigs[lot.OriginSignalID] = lot.ID
	}
	return lot, nil
}

func (s *MemoryStore) CloseLot(_ context.Context, lotID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return false, nil
	}
	delete(s.lots, lotID)
	key := openSetKey(lot.Symbol, lot.Side)
	ids := s.open[key]
	for i, id := range ids {
		if id == lotID {
			s.open[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if lot.OriginSignalID != "" {
		delete(s.sigs, lot.OriginSignalID)
	}
	return true, nil
}

func (s *MemoryStore) PickOpenLotIDs(_ context.Context, symbol string, side models.Side, policy models.PickPolicy, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.open[openSetKey(symbol, side)]
	out := make([]string, len(ids))
	copy(out, ids)
	if policy == models.PickLIFO {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) LoadOpenLots(_ context.Context, symbol string, side models.Side) ([]models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.open[openSetKey(symbol, side)]
	lots := make([]models.Lot, 0, len(ids))
	for _, id := range ids {
		if lot, ok := s.lots[id]; ok {
			lots = append(lots, lot)
		}
	}
	return lots, nil
}

func (s *MemoryStore) GetLot(_ context.Context, lotID string) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return nil, nil
	}
	return &lot, nil
}

func (s *MemoryStore) PutSnapshot(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	s.mu.Lock()
	s.snaps[key] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, key string, dest any) error {
	s.mu.Lock()
	data, ok := s.snaps[key]
	s.mu.Unlock()
	if !ok {
		return ErrSnapshotMissing
	}
	return json.Unmarshal(data, dest)
}

func (s *MemoryStore) Close() error { return nil }
