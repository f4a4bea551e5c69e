package repository

import (
	"context"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

// ApplyDelta adds a (possibly negative) transfer delta to an address's
// running balance. GREATEST absorbs ordering and rounding edge cases so the
// stored balance never goes negative.
func (r *BalanceRepo) ApplyDelta(ctx context.Context, projectID int64, address string, delta *big.Int) error {
	if delta == nil || delta.Sign() == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO token_balances (project_id, address, balance)
		 VALUES ($1, $2, GREATEST($3::numeric, 0))
		 ON CONFLICT (project_id, address) DO UPDATE SET
		     balance = GREATEST(token_balances.balance + $3::numeric, 0),
		     updated_at = NOW()`,
		projectID, address, numericFromBig(delta),
	)
	return err
}

func (r *BalanceRepo) Get(ctx context.Context, projectID int64, address string) (*models.TokenBalance, error) {
	var b models.TokenBalance
	var bal pgtype.Numeric
	err := r.pool.QueryRow(ctx,
		`SELECT project_id, address, balance, updated_at
		 FROM token_balances WHERE project_id = $1 AND address = $2`,
		projectID, address,
	).Scan(&b.ProjectID, &b.Address, &bal, &b.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return &models.TokenBalance{ProjectID: projectID, Address: address, Balance: new(big.Int)}, nil
		}
		return nil, err
	}
	b.Balance = bigFromNumeric(bal)
	return &b, nil
}

// Top returns the largest balances, descending.
func (r *BalanceRepo) Top(ctx context.Context, projectID int64, limit int) ([]models.TokenBalance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT project_id, address, balance, updated_at
		 FROM token_balances
		 WHERE project_id = $1 AND balance > 0
		 ORDER BY balance DESC LIMIT $2`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TokenBalance
	for rows.Next() {
		var b models.TokenBalance
		var bal pgtype.Numeric
		if err := rows.Scan(&b.ProjectID, &b.Address, &bal, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Balance = bigFromNumeric(bal)
		out = append(out, b)
	}
	return out, rows.Err()
}
