package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunavale/mnemo/pkg/memory"
)

// TurnStoreImpl is the layer-0 conversation log backed by the turns table.
//
// Obtain one via [Store.Turns] rather than constructing directly.
// All methods are safe for concurrent use.
type TurnStoreImpl struct {
	pool *pgxpool.Pool
}

// Append implements [memory.TurnStore]. The owning user row is created first
// when missing so the foreign key always holds. The timestamp is stored
// exactly as passed; the column has no default.
func (s *TurnStoreImpl) Append(ctx context.Context, userID, role, text string, at time.Time) error {
	const ensure = `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, ensure, userID); err != nil {
		return fmt.Errorf("turn store: ensure user: %w", err)
	}

	const q = `INSERT INTO turns (user_id, role, text, timestamp) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, userID, role, text, at); err != nil {
		return fmt.Errorf("turn store: append: %w", err)
	}
	return nil
}

// Recent implements [memory.TurnStore]. The newest limit turns are fetched by
// descending sequence id and reversed so the caller receives chronological
// order.
func (s *TurnStoreImpl) Recent(ctx context.Context, userID string, limit int) ([]memory.Turn, error) {
	const q = `
		SELECT id, user_id, role, text, timestamp
		FROM   turns
		WHERE  user_id = $1
		ORDER  BY id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("turn store: recent: %w", err)
	}
	turns, err := collectTurns(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

// Range implements [memory.TurnStore]. The bounds are compared on the
// calendar day of the stored wall-clock timestamp, both ends inclusive.
func (s *TurnStoreImpl) Range(ctx context.Context, userID string, from, to time.Time) ([]memory.Turn, error) {
	const q = `
		SELECT id, user_id, role, text, timestamp
		FROM   turns
		WHERE  user_id = $1
		  AND  timestamp::date BETWEEN $2::date AND $3::date
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("turn store: range: %w", err)
	}
	return collectTurns(rows)
}

// KeywordSearch implements [memory.TurnStore]. Each keyword is matched as a
// literal substring via strpos, OR-combined, most recent turns first.
func (s *TurnStoreImpl) KeywordSearch(ctx context.Context, userID string, keywords []string, limit int) ([]memory.Turn, error) {
	if len(keywords) == 0 {
		return []memory.Turn{}, nil
	}

	args := []any{userID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	matches := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		matches = append(matches, "strpos(text, "+next(kw)+") > 0")
	}

	q := "SELECT id, user_id, role, text, timestamp\n" +
		"FROM   turns\n" +
		"WHERE  user_id = $1\n" +
		"  AND  (" + strings.Join(matches, " OR ") + ")\n" +
		"ORDER  BY id DESC"

	args = append(args, limit)
	q += fmt.Sprintf("\nLIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("turn store: keyword search: %w", err)
	}
	return collectTurns(rows)
}

// collectTurns scans pgx rows into a slice of Turn values.
func collectTurns(rows pgx.Rows) ([]memory.Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Turn, error) {
		var t memory.Turn
		if err := row.Scan(&t.ID, &t.UserID, &t.Role, &t.Text, &t.Timestamp); err != nil {
			return memory.Turn{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("turn store: scan rows: %w", err)
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	return turns, nil
}
