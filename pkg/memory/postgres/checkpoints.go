package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunavale/mnemo/pkg/memory"
)

// CheckpointStoreImpl persists the singleton lifecycle checkpoints in the
// system_state table. Each key holds exactly one row, overwritten on every
// lifecycle transition.
//
// Obtain one via [Store.Checkpoints] rather than constructing directly.
type CheckpointStoreImpl struct {
	pool *pgxpool.Pool
}

// Record implements [memory.CheckpointStore].
func (s *CheckpointStoreImpl) Record(ctx context.Context, key memory.CheckpointKey, at time.Time) error {
	const q = `
		INSERT INTO system_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
		    value      = EXCLUDED.value,
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, string(key), at); err != nil {
		return fmt.Errorf("checkpoint store: record %s: %w", key, err)
	}
	return nil
}

// Get implements [memory.CheckpointStore].
func (s *CheckpointStoreImpl) Get(ctx context.Context, key memory.CheckpointKey) (time.Time, bool, error) {
	const q = `SELECT value FROM system_state WHERE key = $1`

	var at time.Time
	err := s.pool.QueryRow(ctx, q, string(key)).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("checkpoint store: get %s: %w", key, err)
	}
	return at, true, nil
}
