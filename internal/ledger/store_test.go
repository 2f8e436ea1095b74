package ledger

import (
	"context"
	"testing"

	"TradePulse/internal/domain/models"
)

func openTestLot(t *testing.T, s *MemoryStore, tsMs int64, sigID string) models.Lot {
	t.Helper()
	lot, err := s.OpenLot(context.Background(), models.Lot{
		Symbol:         "BTCUSDT",
		Side:           models.SideLong,
		EntryTsMs:      tsMs,
		EntryPrice:     100,
		Qty:            0.01,
		OriginSignalID: sigID,
		Tag:            models.ModeInit,
	})
	if err != nil {
		t.Fatalf("open lot: %v", err)
	}
	if lot.ID == "" {
		t.Fatalf("expected allocated lot id")
	}
	return lot
}

func TestOpenCloseRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	before, _ := s.PickOpenLotIDs(ctx, "BTCUSDT", models.SideLong, models.PickFIFO, 0)
	lot := openTestLot(t, s, 1000, "sig-1")

	ok, err := s.CloseLot(ctx, lot.ID)
	if err != nil || !ok {
		t.Fatalf("close lot: ok=%v err=%v", ok, err)
	}

	after, _ := s.PickOpenLotIDs(ctx, "BTCUSDT", models.SideLong, models.PickFIFO, 0)
	if len(after) != len(before) {
		t.Fatalf("open-set changed by open+close round trip: %v vs %v", before, after)
	}
	if got, _ := s.GetLot(ctx, lot.ID); got != nil {
		t.Fatalf("lot record survived close")
	}
}

func TestCloseLotIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	lot := openTestLot(t, s, 1000, "")

	if ok, err := s.CloseLot(ctx, lot.ID); !ok || err != nil {
		t.Fatalf("first close: ok=%v err=%v", ok, err)
	}
	if ok, err := s.CloseLot(ctx, lot.ID); ok || err != nil {
		t.Fatalf("second close should be a no-op: ok=%v err=%v", ok, err)
	}
	if ok, err := s.CloseLot(ctx, "never-existed"); ok || err != nil {
		t.Fatalf("unknown lot should be a no-op: ok=%v err=%v", ok, err)
	}
}

func TestPickOrdering(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	// inserted out of order on purpose
	l2 := openTestLot(t, s, 2000, "")
	l1 := openTestLot(t, s, 1000, "")
	l3 := openTestLot(t, s, 3000, "")

	fifo, _ := s.PickOpenLotIDs(ctx, "BTCUSDT", models.SideLong, models.PickFIFO, 0)
	if len(fifo) != 3 || fifo[0] != l1.ID || fifo[1] != l2.ID || fifo[2] != l3.ID {
		t.Fatalf("fifo order wrong: %v", fifo)
	}

	lifo, _ := s.PickOpenLotIDs(ctx, "BTCUSDT", models.SideLong, models.PickLIFO, 0)
	if lifo[0] != l3.ID || lifo[2] != l1.ID {
		t.Fatalf("lifo order wrong: %v", lifo)
	}

	capped, _ := s.PickOpenLotIDs(ctx, "BTCUSDT", models.SideLong, models.PickFIFO, 2)
	if len(capped) != 2 || capped[0] != l1.ID {
		t.Fatalf("limit not applied: %v", capped)
	}
}

func TestSidesArePartitioned(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	openTestLot(t, s, 1000, "")
	if _, err := s.OpenLot(ctx, models.Lot{Symbol: "BTCUSDT", Side: models.SideShort, EntryTsMs: 500, EntryPrice: 100, Qty: 1}); err != nil {
		t.Fatalf("open short: %v", err)
	}

	long, _ := s.LoadOpenLots(ctx, "BTCUSDT", models.SideLong)
	short, _ := s.LoadOpenLots(ctx, "BTCUSDT", models.SideShort)
	if len(long) != 1 || len(short) != 1 {
		t.Fatalf("side partition broken: long=%d short=%d", len(long), len(short))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	in := models.PositionSnapshot{Symbol: "BTCUSDT", Side: models.SideLong, Qty: 0.5, EntryPrice: 101}
	if err := s.PutSnapshot(ctx, "pos:BTCUSDT", in); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	var out models.PositionSnapshot
	if err := s.GetSnapshot(ctx, "pos:BTCUSDT", &out); err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if out != in {
		t.Fatalf("snapshot mismatch: %+v vs %+v", out, in)
	}
	if err := s.GetSnapshot(ctx, "missing", &out); err != ErrSnapshotMissing {
		t.Fatalf("expected ErrSnapshotMissing, got %v", err)
	}
}
