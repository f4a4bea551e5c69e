package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type AddressCostRepo struct {
	pool *pgxpool.Pool
}

func NewAddressCostRepo(pool *pgxpool.Pool) *AddressCostRepo {
	return &AddressCostRepo{pool: pool}
}

const costColumns = `project_id, address, net_quote_spent, gross_quote_spent,
	 tokens_received, tokens_sold, quote_received, avg_cost_net, avg_cost_gross, updated_at`

// Get returns the ledger row for an address, or a zeroed row when the
// address has never traded.
func (r *AddressCostRepo) Get(ctx context.Context, projectID int64, address string) (*models.AddressCost, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+costColumns+` FROM address_costs WHERE project_id = $1 AND address = $2`,
		projectID, address,
	)
	c, err := scanCostRow(row)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return models.NewAddressCost(projectID, address), nil
		}
		return nil, err
	}
	return c, nil
}

// Save writes the running totals, superseding any previous row.
func (r *AddressCostRepo) Save(ctx context.Context, c *models.AddressCost) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO address_costs
		 (project_id, address, net_quote_spent, gross_quote_spent, tokens_received,
		  tokens_sold, quote_received, avg_cost_net, avg_cost_gross, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		 ON CONFLICT (project_id, address) DO UPDATE SET
		     net_quote_spent = EXCLUDED.net_quote_spent,
		     gross_quote_spent = EXCLUDED.gross_quote_spent,
		     tokens_received = EXCLUDED.tokens_received,
		     tokens_sold = EXCLUDED.tokens_sold,
		     quote_received = EXCLUDED.quote_received,
		     avg_cost_net = EXCLUDED.avg_cost_net,
		     avg_cost_gross = EXCLUDED.avg_cost_gross,
		     updated_at = NOW()`,
		c.ProjectID, c.Address,
		numericFromBig(c.NetQuoteSpent), numericFromBig(c.GrossQuoteSpent),
		numericFromBig(c.TokensReceived), numericFromBig(c.TokensSold),
		numericFromBig(c.QuoteReceived),
		c.AvgCostNet, c.AvgCostGross,
	)
	return err
}

// TopHolders returns the addresses with the largest cumulative acquisitions.
func (r *AddressCostRepo) TopHolders(ctx context.Context, projectID int64, limit int) ([]models.AddressCost, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+costColumns+` FROM address_costs
		 WHERE project_id = $1
		 ORDER BY tokens_received DESC LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AddressCost
	for rows.Next() {
		c, err := scanCostRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// --- scan helpers ---

func scanCostRow(row scannable) (*models.AddressCost, error) {
	var c models.AddressCost
	var net, gross, recv, sold, qrecv pgtype.Numeric
	err := row.Scan(
		&c.ProjectID, &c.Address, &net, &gross, &recv, &sold, &qrecv,
		&c.AvgCostNet, &c.AvgCostGross, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.NetQuoteSpent = bigFromNumeric(net)
	c.GrossQuoteSpent = bigFromNumeric(gross)
	c.TokensReceived = bigFromNumeric(recv)
	c.TokensSold = bigFromNumeric(sold)
	c.QuoteReceived = bigFromNumeric(qrecv)
	return &c, nil
}
