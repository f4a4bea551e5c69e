package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type TaxRepo struct {
	pool *pgxpool.Pool
}

func NewTaxRepo(pool *pgxpool.Pool) *TaxRepo {
	return &TaxRepo{pool: pool}
}

// InsertIgnore writes the inflow unless its (tx_hash, log_index) key exists.
func (r *TaxRepo) InsertIgnore(ctx context.Context, in *models.TaxInflow) (bool, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO tax_inflows
		 (project_id, tx_hash, log_index, block, timestamp, token_address, amount)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		in.ProjectID, in.TxHash, in.LogIndex, in.Block, ts,
		in.TokenAddress, numericFromBig(in.Amount),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Totals aggregates collected tax per asset. Anything that is not the quote
// asset is the project token.
func (r *TaxRepo) Totals(ctx context.Context, projectID int64, quoteAddress string) (*models.TaxTotals, error) {
	var quote, token pgtype.Numeric
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE token_address = $2), 0),
			COALESCE(SUM(amount) FILTER (WHERE token_address <> $2), 0),
			COUNT(*)
		 FROM tax_inflows WHERE project_id = $1`,
		projectID, quoteAddress,
	).Scan(&quote, &token, &count)
	if err != nil {
		return nil, err
	}
	return &models.TaxTotals{
		QuoteTotal: bigFromNumeric(quote),
		TokenTotal: bigFromNumeric(token),
		Inflows:    count,
	}, nil
}

// Recent returns the newest inflows, newest first.
func (r *TaxRepo) Recent(ctx context.Context, projectID int64, limit int) ([]models.TaxInflow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, project_id, tx_hash, log_index, block, timestamp, token_address, amount, created_at
		 FROM tax_inflows
		 WHERE project_id = $1
		 ORDER BY block DESC, log_index DESC LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TaxInflow
	for rows.Next() {
		var in models.TaxInflow
		var amount pgtype.Numeric
		if err := rows.Scan(
			&in.ID, &in.ProjectID, &in.TxHash, &in.LogIndex, &in.Block,
			&in.Timestamp, &in.TokenAddress, &amount, &in.CreatedAt,
		); err != nil {
			return nil, err
		}
		in.Amount = bigFromNumeric(amount)
		out = append(out, in)
	}
	return out, rows.Err()
}
