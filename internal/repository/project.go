package repository

import (
	"context"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type ProjectRepo struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

const projectColumns = `id, name, token_address, quote_address, phase, tax_recipient,
	 total_supply, buy_tax_bps, first_active_block, last_spot_price, created_at`

// Create seeds a project in the INTERNAL phase. Registering the same token
// twice returns the existing row.
func (r *ProjectRepo) Create(ctx context.Context, name, tokenAddress, quoteAddress string) (*models.Project, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO projects (name, token_address, quote_address)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token_address) DO UPDATE SET token_address = EXCLUDED.token_address
		 RETURNING `+projectColumns,
		name, tokenAddress, quoteAddress,
	)
	return scanProject(row)
}

func (r *ProjectRepo) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (r *ProjectRepo) GetByToken(ctx context.Context, tokenAddress string) (*models.Project, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE token_address = $1`, tokenAddress)
	p, err := scanProject(row)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepo) List(ctx context.Context) ([]models.Project, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProjects(rows)
}

// UpdateMetadata records the best-effort token reads; nil values leave the
// stored column untouched.
func (r *ProjectRepo) UpdateMetadata(ctx context.Context, id int64, taxRecipient *string, totalSupply *big.Int, buyTaxBps *int) error {
	var supply pgtype.Numeric
	if totalSupply != nil {
		supply = numericFromBig(totalSupply)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE projects SET
		     tax_recipient = COALESCE($2, tax_recipient),
		     total_supply = COALESCE($3, total_supply),
		     buy_tax_bps = COALESCE($4, buy_tax_bps)
		 WHERE id = $1`,
		id, taxRecipient, supply, buyTaxBps,
	)
	return err
}

func (r *ProjectRepo) SetFirstActiveBlock(ctx context.Context, id int64, block uint64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE projects SET first_active_block = $2 WHERE id = $1`, id, block)
	return err
}

// SetPhase flips the lifecycle phase. The predicate keeps the transition
// one-way: an EXTERNAL project never reverts.
func (r *ProjectRepo) SetPhase(ctx context.Context, id int64, phase models.Phase) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE projects SET phase = $2 WHERE id = $1 AND phase <> 'EXTERNAL'`, id, phase)
	return err
}

func (r *ProjectRepo) SetSpotPrice(ctx context.Context, id int64, price float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE projects SET last_spot_price = $2 WHERE id = $1`, id, price)
	return err
}

// --- scan helpers ---

func scanProject(row scannable) (*models.Project, error) {
	var p models.Project
	var supply pgtype.Numeric
	err := row.Scan(
		&p.ID, &p.Name, &p.TokenAddress, &p.QuoteAddress, &p.Phase,
		&p.TaxRecipient, &supply, &p.BuyTaxBps, &p.FirstActiveBlock,
		&p.LastSpotPrice, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TotalSupply = nullableBigFromNumeric(supply)
	return &p, nil
}

func collectProjects(rows rowsIter) ([]models.Project, error) {
	var out []models.Project
	for rows.Next() {
		var p models.Project
		var supply pgtype.Numeric
		if err := rows.Scan(
			&p.ID, &p.Name, &p.TokenAddress, &p.QuoteAddress, &p.Phase,
			&p.TaxRecipient, &supply, &p.BuyTaxBps, &p.FirstActiveBlock,
			&p.LastSpotPrice, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		p.TotalSupply = nullableBigFromNumeric(supply)
		out = append(out, p)
	}
	return out, rows.Err()
}
