package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
)

// ClickHouseHistory implements TradeHistory on ClickHouse. Each executed
// trade becomes one append-only row.
type ClickHouseHistory struct {
	db    *sql.DB
	table string
}

// NewClickHouseHistory creates ClickHouse-backed trade history.
func NewClickHouseHistory(db *sql.DB, table string) repository.TradeHistory {
	if table == "" {
		table = "trades"
	}
	return &ClickHouseHistory{db: db, table: table}
}

// HistorySchema returns the DDL for the trade table, applied once at
// startup via the client's InitSchema.
func HistorySchema(table string) []string {
	if table == "" {
		table = "trades"
	}
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts        DateTime64(3),
		symbol    LowCardinality(String),
		side      LowCardinality(String),
		kind      LowCardinality(String),
		mode      LowCardinality(String),
		price     Float64,
		qty       Float64,
		pnl       Float64,
		fee       Float64,
		order_id  String,
		lot_ids   String
	) ENGINE = MergeTree() ORDER BY (symbol, ts)`, table)}
}

func (h *ClickHouseHistory) Append(ctx context.Context, t models.ExecutedTrade) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, side, kind, mode, price, qty, pnl, fee, order_id, lot_ids) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", h.table)
	_, err := h.db.ExecContext(ctx, q,
		time.UnixMilli(t.TimestampMs),
		t.Symbol,
		string(t.Side),
		string(t.Kind),
		t.Mode,
		t.Price,
		t.Qty,
		t.PnL,
		t.Fee,
		t.OrderID,
		strings.Join(t.LotIDs, ","),
	)
	return err
}

func (h *ClickHouseHistory) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.ExecutedTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT ts, symbol, side, kind, mode, price, qty, pnl, fee, order_id, lot_ids FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", h.table)
	rows, err := h.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.ExecutedTrade
	for rows.Next() {
		var (
			t      models.ExecutedTrade
			ts     time.Time
			side   string
			kind   string
			lotIDs string
		)
		if err := rows.Scan(&ts, &t.Symbol, &side, &kind, &t.Mode, &t.Price, &t.Qty, &t.PnL, &t.Fee, &t.OrderID, &lotIDs); err != nil {
			return nil, err
		}
		t.TimestampMs = ts.UnixMilli()
		t.Side = models.Side(side)
		t.Kind = models.ActionKind(kind)
		if lotIDs != "" {
			t.LotIDs = strings.Split(lotIDs, ",")
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close is a no-op: the connection lifecycle belongs to pkg/clickhouse.
func (h *ClickHouseHistory) Close() error { return nil }
