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

// SummaryStoreImpl persists layer 1-3 summaries across the three period
// tables (weekly_summaries, monthly_summaries, yearly_summaries).
//
// Obtain one via [Store.Summaries] rather than constructing directly.
// All methods are safe for concurrent use.
type SummaryStoreImpl struct {
	pool *pgxpool.Pool
}

// summaryTable maps a summary kind to its table and period-start column.
// The weekly table has no relationship_milestone column.
func summaryTable(kind memory.SummaryKind) (table, periodCol string, hasMilestone bool, err error) {
	switch kind {
	case memory.SummaryWeekly:
		return "weekly_summaries", "week_start", false, nil
	case memory.SummaryMonthly:
		return "monthly_summaries", "month_start", true, nil
	case memory.SummaryYearly:
		return "yearly_summaries", "year_start", true, nil
	}
	return "", "", false, fmt.Errorf("summary store: unknown kind %q", kind)
}

// Add implements [memory.SummaryStore]. It always inserts a fresh row;
// callers wanting once-per-period semantics must consult [SummaryStoreImpl.Exists]
// first.
func (s *SummaryStoreImpl) Add(ctx context.Context, sum memory.Summary) (int64, error) {
	table, periodCol, hasMilestone, err := summaryTable(sum.Kind)
	if err != nil {
		return 0, err
	}

	events, err := json.Marshal(sum.KeyEvents)
	if err != nil {
		return 0, fmt.Errorf("summary store: marshal key events: %w", err)
	}

	var (
		q    string
		args []any
	)
	if hasMilestone {
		q = fmt.Sprintf(`
			INSERT INTO %s (user_id, %s, summary, key_events, emotional_trend, relationship_milestone)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`, table, periodCol)
		args = []any{sum.UserID, sum.PeriodStart, sum.Narrative, events, sum.EmotionalTrend, sum.RelationshipMilestone}
	} else {
		q = fmt.Sprintf(`
			INSERT INTO %s (user_id, %s, summary, key_events, emotional_trend)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`, table, periodCol)
		args = []any{sum.UserID, sum.PeriodStart, sum.Narrative, events, sum.EmotionalTrend}
	}

	var id int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("summary store: add %s: %w", sum.Kind, err)
	}
	return id, nil
}

// Range implements [memory.SummaryStore]. Period starts are compared on the
// calendar day, both ends inclusive, ascending.
func (s *SummaryStoreImpl) Range(ctx context.Context, userID string, kind memory.SummaryKind, from, to time.Time) ([]memory.Summary, error) {
	table, periodCol, hasMilestone, err := summaryTable(kind)
	if err != nil {
		return nil, err
	}

	milestoneCol := "''"
	if hasMilestone {
		milestoneCol = "relationship_milestone"
	}

	q := fmt.Sprintf(`
		SELECT id, user_id, %s, summary, key_events, emotional_trend, %s, created_at
		FROM   %s
		WHERE  user_id = $1
		  AND  %s BETWEEN $2::date AND $3::date
		ORDER  BY %s`, periodCol, milestoneCol, table, periodCol, periodCol)

	rows, err := s.pool.Query(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("summary store: range %s: %w", kind, err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Summary, error) {
		var (
			sum    memory.Summary
			events []byte
		)
		if err := row.Scan(
			&sum.ID,
			&sum.UserID,
			&sum.PeriodStart,
			&sum.Narrative,
			&events,
			&sum.EmotionalTrend,
			&sum.RelationshipMilestone,
			&sum.CreatedAt,
		); err != nil {
			return memory.Summary{}, err
		}
		sum.Kind = kind
		if len(events) > 0 {
			if err := json.Unmarshal(events, &sum.KeyEvents); err != nil {
				return memory.Summary{}, fmt.Errorf("unmarshal key events: %w", err)
			}
		}
		return sum, nil
	})
	if err != nil {
		return nil, fmt.Errorf("summary store: scan rows: %w", err)
	}
	if summaries == nil {
		summaries = []memory.Summary{}
	}
	return summaries, nil
}

// Exists implements [memory.SummaryStore].
func (s *SummaryStoreImpl) Exists(ctx context.Context, userID string, kind memory.SummaryKind, periodStart time.Time) (bool, error) {
	table, periodCol, _, err := summaryTable(kind)
	if err != nil {
		return false, err
	}

	q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1 AND %s = $2::date)`, table, periodCol)

	var exists bool
	if err := s.pool.QueryRow(ctx, q, userID, periodStart).Scan(&exists); err != nil {
		return false, fmt.Errorf("summary store: exists %s: %w", kind, err)
	}
	return exists, nil
}
