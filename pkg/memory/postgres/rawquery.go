package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RawQuerierImpl executes validator-accepted read-only statements. It applies
// no safety checks of its own; every statement must pass the query safety
// validator before reaching this type.
//
// Obtain one via [Store.Raw] rather than constructing directly.
type RawQuerierImpl struct {
	pool *pgxpool.Pool
}

// RunSelect implements [memory.RawQuerier]. Each result row is rendered as a
// single "column=value" line suitable for direct injection into a memory
// context.
func (s *RawQuerierImpl) RunSelect(ctx context.Context, stmt string) ([]string, error) {
	rows, err := s.pool.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("raw querier: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var lines []string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("raw querier: read row: %w", err)
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%s=%v", cols[i], v)
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("raw querier: rows: %w", err)
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}
