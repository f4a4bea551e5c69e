package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/curvescan-backend/internal/models"
)

type StateRepo struct {
	pool *pgxpool.Pool
}

func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// Ensure creates the cursor row seeded at startBlock if none exists yet.
func (r *StateRepo) Ensure(ctx context.Context, projectID int64, startBlock uint64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO indexer_state (project_id, last_processed_block)
		 VALUES ($1, $2)
		 ON CONFLICT (project_id) DO NOTHING`,
		projectID, startBlock,
	)
	return err
}

func (r *StateRepo) Get(ctx context.Context, projectID int64) (*models.IndexerState, error) {
	var s models.IndexerState
	err := r.pool.QueryRow(ctx,
		`SELECT project_id, last_processed_block, last_processed_at, log_fetch_failures, updated_at
		 FROM indexer_state WHERE project_id = $1`,
		projectID,
	).Scan(&s.ProjectID, &s.LastProcessedBlock, &s.LastProcessedAt, &s.LogFetchFailures, &s.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Advance moves the cursor forward. GREATEST keeps it monotonic even if a
// stale caller hands in an older block.
func (r *StateRepo) Advance(ctx context.Context, projectID int64, block uint64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE indexer_state SET
		     last_processed_block = GREATEST(last_processed_block, $2),
		     last_processed_at = NOW(),
		     updated_at = NOW()
		 WHERE project_id = $1`,
		projectID, block,
	)
	return err
}

// AddFailures bumps the rolling log-fetch failure counter.
func (r *StateRepo) AddFailures(ctx context.Context, projectID int64, n int64) error {
	if n == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE indexer_state SET
		     log_fetch_failures = log_fetch_failures + $2,
		     updated_at = NOW()
		 WHERE project_id = $1`,
		projectID, n,
	)
	return err
}
