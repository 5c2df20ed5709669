package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunavale/mnemo/pkg/memory"
)

// TimelineStoreImpl is the dated importance index backed by the
// memory_timeline table.
//
// Obtain one via [Store.Timeline] rather than constructing directly.
// All methods are safe for concurrent use.
type TimelineStoreImpl struct {
	pool *pgxpool.Pool
}

// Add implements [memory.TimelineStore].
func (s *TimelineStoreImpl) Add(ctx context.Context, e memory.TimelineEntry) error {
	entities, err := json.Marshal(e.Entities)
	if err != nil {
		return fmt.Errorf("timeline store: marshal entities: %w", err)
	}

	const q = `
		INSERT INTO memory_timeline
		    (user_id, date_key, memory_id, layer, importance, entities, content_preview)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)`

	_, err = s.pool.Exec(ctx, q,
		e.UserID,
		e.DateKey,
		e.MemoryID,
		e.Layer,
		e.Importance,
		entities,
		e.Preview,
	)
	if err != nil {
		return fmt.Errorf("timeline store: add: %w", err)
	}
	return nil
}

// Range implements [memory.TimelineStore]. Higher-importance entries come
// first; within equal importance, higher layers (broader summaries) win.
func (s *TimelineStoreImpl) Range(ctx context.Context, userID string, from, to time.Time, limit int) ([]memory.TimelineEntry, error) {
	const q = `
		SELECT id, user_id, to_char(date_key, 'YYYY-MM-DD'), memory_id, layer, importance, entities, content_preview
		FROM   memory_timeline
		WHERE  user_id = $1
		  AND  date_key BETWEEN $2::date AND $3::date
		ORDER  BY importance DESC, layer DESC
		LIMIT  $4`

	rows, err := s.pool.Query(ctx, q, userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("timeline store: range: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TimelineEntry, error) {
		var (
			e        memory.TimelineEntry
			entities []byte
		)
		if err := row.Scan(
			&e.ID,
			&e.UserID,
			&e.DateKey,
			&e.MemoryID,
			&e.Layer,
			&e.Importance,
			&entities,
			&e.Preview,
		); err != nil {
			return memory.TimelineEntry{}, err
		}
		if len(entities) > 0 {
			if err := json.Unmarshal(entities, &e.Entities); err != nil {
				return memory.TimelineEntry{}, fmt.Errorf("unmarshal entities: %w", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("timeline store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []memory.TimelineEntry{}
	}
	return entries, nil
}
