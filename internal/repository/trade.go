package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

const tradeColumns = `id, project_id, venue, market_address, tx_hash, log_index, block,
	 timestamp, trader, side, quote_in, quote_in_gross, quote_out, token_in, token_out,
	 price, created_at`

// InsertIgnore writes the trade unless its (tx_hash, log_index) key already
// exists. The returned bool reports whether a row was actually inserted,
// which gates cost-ledger updates and event emission on re-processed ranges.
func (r *TradeRepo) InsertIgnore(ctx context.Context, t *models.Trade) (bool, error) {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO trades
		 (project_id, venue, market_address, tx_hash, log_index, block, timestamp,
		  trader, side, quote_in, quote_in_gross, quote_out, token_in, token_out, price)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		t.ProjectID, t.Venue, t.MarketAddress, t.TxHash, t.LogIndex, t.Block, ts,
		t.Trader, t.Side,
		numericFromBig(t.QuoteIn), numericFromBig(t.QuoteInGross),
		numericFromBig(t.QuoteOut), numericFromBig(t.TokenIn), numericFromBig(t.TokenOut),
		t.Price,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Recent returns the newest trades for a project, newest first.
func (r *TradeRepo) Recent(ctx context.Context, projectID int64, limit int) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE project_id = $1
		 ORDER BY block DESC, log_index DESC LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ByTrader returns one address's trades in execution order.
func (r *TradeRepo) ByTrader(ctx context.Context, projectID int64, trader string) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE project_id = $1 AND trader = $2
		 ORDER BY block ASC, log_index ASC`,
		projectID, trader,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// Range returns a project's trades inside an inclusive block range, in
// execution order.
func (r *TradeRepo) Range(ctx context.Context, projectID int64, fromBlock, toBlock uint64) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades
		 WHERE project_id = $1 AND block BETWEEN $2 AND $3
		 ORDER BY block ASC, log_index ASC`,
		projectID, fromBlock, toBlock,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (r *TradeRepo) Stats(ctx context.Context, projectID int64) (*models.TradeStats, error) {
	var s models.TradeStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(CASE WHEN side = 'BUY' THEN 1 END),
			COUNT(CASE WHEN side = 'SELL' THEN 1 END),
			MIN(timestamp),
			MAX(timestamp)
		 FROM trades WHERE project_id = $1`,
		projectID,
	).Scan(&s.TotalTrades, &s.BuyCount, &s.SellCount, &s.FirstTrade, &s.LastTrade)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// --- scan helpers ---

func collectTrades(rows rowsIter) ([]models.Trade, error) {
	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		var qin, qgross, qout, tin, tout pgtype.Numeric
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Venue, &t.MarketAddress, &t.TxHash, &t.LogIndex,
			&t.Block, &t.Timestamp, &t.Trader, &t.Side,
			&qin, &qgross, &qout, &tin, &tout,
			&t.Price, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.QuoteIn = nullableBigFromNumeric(qin)
		t.QuoteInGross = nullableBigFromNumeric(qgross)
		t.QuoteOut = nullableBigFromNumeric(qout)
		t.TokenIn = nullableBigFromNumeric(tin)
		t.TokenOut = nullableBigFromNumeric(tout)
		out = append(out, t)
	}
	return out, rows.Err()
}
