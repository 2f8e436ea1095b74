package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
)

// LotsIndex mirrors the durable open-sets in memory for O(1) reads. It is
// rebuilt from the store at startup and afterwards mutated only through
// OnOpen/OnClose immediately after a durable transaction succeeds. It never
// decides whether to write; callers needing ground truth after a crash must
// Rebuild before trusting it.
type LotsIndex struct {
	mu    sync.RWMutex
	items map[string][]models.Lot // (symbol|side), oldest-first
}

// NewLotsIndex creates an empty index.
func NewLotsIndex() *LotsIndex {
	return &LotsIndex{items: make(map[string][]models.Lot)}
}

// Rebuild discards the index and reloads every (symbol, side) open-set
// from the durable store.
func (x *LotsIndex) Rebuild(ctx context.Context, store repository.LedgerStore, symbols []string) error {
	fresh := make(map[string][]models.Lot)
	for _, symbol := range symbols {
		for _, side := range []models.Side{models.SideLong, models.SideShort} {
			lots, err := store.LoadOpenLots(ctx, symbol, side)
			if err != nil {
				return fmt.Errorf("rebuild %s/%s: %w", symbol, side, err)
			}
			sort.SliceStable(lots, func(i, j int) bool { return lots[i].EntryTsMs < lots[j].EntryTsMs })
			fresh[openSetKey(symbol, side)] = lots
		}
	}

	x.mu.Lock()
	x.items = fresh
	x.mu.Unlock()
	return nil
}

// OnOpen inserts a lot after its durable open committed, keeping entry-time
// order.
func (x *LotsIndex) OnOpen(lot models.Lot) {
	x.mu.Lock()
	defer x.mu.Unlock()

	key := openSetKey(lot.Symbol, lot.Side)
	lots := append(x.items[key], lot)
	sort.SliceStable(lots, func(i, j int) bool { return lots[i].EntryTsMs < lots[j].EntryTsMs })
	x.items[key] = lots
}

// OnClose removes a lot after its durable close committed.
func (x *LotsIndex) OnClose(symbol string, side models.Side, lotID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	key := openSetKey(symbol, side)
	lots := x.items[key]
	for i, lot := range lots {
		if lot.ID == lotID {
			x.items[key] = append(lots[:i], lots[i+1:]...)
			return
		}
	}
}

// Open returns the open lots for a (symbol, side), oldest-first. The
// oldest-first ordering is an invariant the strategy's positional exits
// rely on, so it is verified on every read rather than assumed.
func (x *LotsIndex) Open(symbol string, side models.Side) []models.Lot {
	x.mu.RLock()
	lots := x.items[openSetKey(symbol, side)]
	out := make([]models.Lot, len(lots))
	copy(out, lots)
	x.mu.RUnlock()

	if !sort.SliceIsSorted(out, func(i, j int) bool { return out[i].EntryTsMs < out[j].EntryTsMs }) {
		sort.SliceStable(out, func(i, j int) bool { return out[i].EntryTsMs < out[j].EntryTsMs })
	}
	return out
}

// Count returns the number of open lots for a (symbol, side).
func (x *LotsIndex) Count(symbol string, side models.Side) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items[openSetKey(symbol, side)])
}

// OpenSignalsIndex tracks signals that were recorded but whose fill is not
// yet confirmed, per (symbol, side), as a double-ended queue. It closes the
// window between signal emission and order confirmation: the strategy
// counts pending and filled positions uniformly.
type OpenSignalsIndex struct {
	mu    sync.Mutex
	items map[string][]models.OpenSignal
}

// NewOpenSignalsIndex creates an empty index.
func NewOpenSignalsIndex() *OpenSignalsIndex {
	return &OpenSignalsIndex{items: make(map[string][]models.OpenSignal)}
}

// OnOpen appends a recorded signal.
func (x *OpenSignalsIndex) OnOpen(sig models.OpenSignal) {
	x.mu.Lock()
	key := openSetKey(sig.Symbol, sig.Side)
	x.items[key] = append(x.items[key], sig)
	x.mu.Unlock()
}

// OnClose pops from the head (FIFO) or tail (LIFO) of the deque. Returns
// nil when empty.
func (x *OpenSignalsIndex) OnClose(symbol string, side models.Side, policy models.PickPolicy) *models.OpenSignal {
	x.mu.Lock()
	defer x.mu.Unlock()

	key := openSetKey(symbol, side)
	sigs := x.items[key]
	if len(sigs) == 0 {
		return nil
	}
	var out models.OpenSignal
	if policy == models.PickLIFO {
		out = sigs[len(sigs)-1]
		x.items[key] = sigs[:len(sigs)-1]
	} else {
		out = sigs[0]
		x.items[key] = sigs[1:]
	}
	return &out
}

// Remove withdraws a signal by id, wherever it sits in the deque. Used
// when an entry is abandoned before fill.
func (x *OpenSignalsIndex) Remove(symbol string, side models.Side, signalID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	key := openSetKey(symbol, side)
	sigs := x.items[key]
	for i, sig := range sigs {
		if sig.ID == signalID {
			x.items[key] = append(sigs[:i], sigs[i+1:]...)
			return true
		}
	}
	return false
}

// Open returns the open signals oldest-first.
func (x *OpenSignalsIndex) Open(symbol string, side models.Side) []models.OpenSignal {
	x.mu.Lock()
	defer x.mu.Unlock()

	sigs := x.items[openSetKey(symbol, side)]
	out := make([]models.OpenSignal, len(sigs))
	copy(out, sigs)
	return out
}

// Count returns the number of open signals for a (symbol, side).
func (x *OpenSignalsIndex) Count(symbol string, side models.Side) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.items[openSetKey(symbol, side)])
}
