package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type MarketRepo struct {
	pool *pgxpool.Pool
}

func NewMarketRepo(pool *pgxpool.Pool) *MarketRepo {
	return &MarketRepo{pool: pool}
}

const marketColumns = `id, project_id, venue, address, quote_address, token0, token1,
	 start_block, end_block, created_at`

// Open records a new market with an open-ended block range. The partial
// unique index rejects a second open market on the same venue.
func (r *MarketRepo) Open(ctx context.Context, m *models.Market) (*models.Market, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO markets
		 (project_id, venue, address, quote_address, token0, token1, start_block)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING `+marketColumns,
		m.ProjectID, m.Venue, m.Address, m.QuoteAddress, m.Token0, m.Token1, m.StartBlock,
	)
	return scanMarket(row)
}

// GetOpen returns the open market for a venue, or nil when none exists.
func (r *MarketRepo) GetOpen(ctx context.Context, projectID int64, venue models.Venue) (*models.Market, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets
		 WHERE project_id = $1 AND venue = $2 AND end_block IS NULL`,
		projectID, venue,
	)
	m, err := scanMarket(row)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// Close ends the market's active range at the given block.
func (r *MarketRepo) Close(ctx context.Context, id int64, endBlock uint64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE markets SET end_block = $2 WHERE id = $1 AND end_block IS NULL`,
		id, endBlock,
	)
	return err
}

func (r *MarketRepo) ListByProject(ctx context.Context, projectID int64) ([]models.Market, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE project_id = $1 ORDER BY start_block ASC`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMarkets(rows)
}

// --- scan helpers ---

func scanMarket(row scannable) (*models.Market, error) {
	var m models.Market
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Venue, &m.Address, &m.QuoteAddress,
		&m.Token0, &m.Token1, &m.StartBlock, &m.EndBlock, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMarkets(rows rowsIter) ([]models.Market, error) {
	var out []models.Market
	for rows.Next() {
		var m models.Market
		if err := rows.Scan(
			&m.ID, &m.ProjectID, &m.Venue, &m.Address, &m.QuoteAddress,
			&m.Token0, &m.Token1, &m.StartBlock, &m.EndBlock, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
