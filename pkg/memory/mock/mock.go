// Package mock provides in-memory test doubles for the memory store
// interfaces. Every double records the calls it receives and lets tests
// script return values and errors per method.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lunavale/mnemo/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.TurnStore       = (*TurnStore)(nil)
	_ memory.SummaryStore    = (*SummaryStore)(nil)
	_ memory.TimelineStore   = (*TimelineStore)(nil)
	_ memory.CheckpointStore = (*CheckpointStore)(nil)
	_ memory.UserDirectory   = (*UserDirectory)(nil)
	_ memory.RawQuerier      = (*RawQuerier)(nil)
	_ memory.SemanticIndex   = (*SemanticIndex)(nil)
)

// ── TurnStore ───────────────────────────────────────────────────────────────

// TurnStore is an in-memory [memory.TurnStore] that keeps appended turns in
// insertion order and answers queries from that slice.
type TurnStore struct {
	mu     sync.Mutex
	nextID int64

	// Turns holds every appended turn in insertion order.
	Turns []memory.Turn

	// AppendErr, RecentErr, RangeErr and SearchErr force the corresponding
	// method to fail when non-nil.
	AppendErr error
	RecentErr error
	RangeErr  error
	SearchErr error
}

// Append implements [memory.TurnStore].
func (s *TurnStore) Append(_ context.Context, userID, role, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.nextID++
	s.Turns = append(s.Turns, memory.Turn{
		ID:        s.nextID,
		UserID:    userID,
		Role:      role,
		Text:      text,
		Timestamp: at,
	})
	return nil
}

// Recent implements [memory.TurnStore].
func (s *TurnStore) Recent(_ context.Context, userID string, limit int) ([]memory.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	var mine []memory.Turn
	for _, t := range s.Turns {
		if t.UserID == userID {
			mine = append(mine, t)
		}
	}
	if len(mine) > limit {
		mine = mine[len(mine)-limit:]
	}
	return append([]memory.Turn{}, mine...), nil
}

// Range implements [memory.TurnStore].
func (s *TurnStore) Range(_ context.Context, userID string, from, to time.Time) ([]memory.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RangeErr != nil {
		return nil, s.RangeErr
	}
	fromDay := from.Format(memory.DateKeyLayout)
	toDay := to.Format(memory.DateKeyLayout)
	out := []memory.Turn{}
	for _, t := range s.Turns {
		day := t.Timestamp.Format(memory.DateKeyLayout)
		if t.UserID == userID && day >= fromDay && day <= toDay {
			out = append(out, t)
		}
	}
	return out, nil
}

// KeywordSearch implements [memory.TurnStore].
func (s *TurnStore) KeywordSearch(_ context.Context, userID string, keywords []string, limit int) ([]memory.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	out := []memory.Turn{}
	if len(keywords) == 0 {
		return out, nil
	}
	for i := len(s.Turns) - 1; i >= 0 && len(out) < limit; i-- {
		t := s.Turns[i]
		if t.UserID != userID {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(t.Text, kw) {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// ── SummaryStore ────────────────────────────────────────────────────────────

// SummaryStore is an in-memory [memory.SummaryStore].
type SummaryStore struct {
	mu     sync.Mutex
	nextID int64

	// Summaries holds every added summary in insertion order.
	Summaries []memory.Summary

	AddErr    error
	RangeErr  error
	ExistsErr error
}

// Add implements [memory.SummaryStore].
func (s *SummaryStore) Add(_ context.Context, sum memory.Summary) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AddErr != nil {
		return 0, s.AddErr
	}
	s.nextID++
	sum.ID = s.nextID
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now()
	}
	s.Summaries = append(s.Summaries, sum)
	return sum.ID, nil
}

// Range implements [memory.SummaryStore].
func (s *SummaryStore) Range(_ context.Context, userID string, kind memory.SummaryKind, from, to time.Time) ([]memory.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RangeErr != nil {
		return nil, s.RangeErr
	}
	out := []memory.Summary{}
	for _, sum := range s.Summaries {
		if sum.UserID != userID || sum.Kind != kind {
			continue
		}
		if sum.PeriodStart.Before(from) || sum.PeriodStart.After(to) {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}

// Exists implements [memory.SummaryStore].
func (s *SummaryStore) Exists(_ context.Context, userID string, kind memory.SummaryKind, periodStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	day := periodStart.Format(memory.DateKeyLayout)
	for _, sum := range s.Summaries {
		if sum.UserID == userID && sum.Kind == kind && sum.PeriodStart.Format(memory.DateKeyLayout) == day {
			return true, nil
		}
	}
	return false, nil
}

// ── TimelineStore ───────────────────────────────────────────────────────────

// TimelineStore is an in-memory [memory.TimelineStore].
type TimelineStore struct {
	mu     sync.Mutex
	nextID int64

	// Entries holds every added entry in insertion order.
	Entries []memory.TimelineEntry

	AddErr   error
	RangeErr error
}

// Add implements [memory.TimelineStore].
func (s *TimelineStore) Add(_ context.Context, e memory.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AddErr != nil {
		return s.AddErr
	}
	s.nextID++
	e.ID = s.nextID
	s.Entries = append(s.Entries, e)
	return nil
}

// Range implements [memory.TimelineStore].
func (s *TimelineStore) Range(_ context.Context, userID string, from, to time.Time, limit int) ([]memory.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RangeErr != nil {
		return nil, s.RangeErr
	}
	fromDay := from.Format(memory.DateKeyLayout)
	toDay := to.Format(memory.DateKeyLayout)
	out := []memory.TimelineEntry{}
	for _, e := range s.Entries {
		if e.UserID == userID && e.DateKey >= fromDay && e.DateKey <= toDay {
			out = append(out, e)
		}
	}
	// Importance descending, then layer descending, matching the store
	// contract. Insertion order breaks remaining ties.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.Importance > b.Importance || (a.Importance == b.Importance && a.Layer >= b.Layer) {
				break
			}
			out[j-1], out[j] = b, a
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── CheckpointStore ─────────────────────────────────────────────────────────

// CheckpointStore is an in-memory [memory.CheckpointStore].
type CheckpointStore struct {
	mu sync.Mutex

	// Checkpoints maps key to the last recorded timestamp.
	Checkpoints map[memory.CheckpointKey]time.Time

	RecordErr error
	GetErr    error
}

// Record implements [memory.CheckpointStore].
func (s *CheckpointStore) Record(_ context.Context, key memory.CheckpointKey, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	if s.Checkpoints == nil {
		s.Checkpoints = make(map[memory.CheckpointKey]time.Time)
	}
	s.Checkpoints[key] = at
	return nil
}

// Get implements [memory.CheckpointStore].
func (s *CheckpointStore) Get(_ context.Context, key memory.CheckpointKey) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return time.Time{}, false, s.GetErr
	}
	at, ok := s.Checkpoints[key]
	return at, ok, nil
}

// ── UserDirectory ───────────────────────────────────────────────────────────

// UserDirectory is an in-memory [memory.UserDirectory].
type UserDirectory struct {
	mu sync.Mutex

	// Users holds the known user ids in first-seen order.
	Users []string

	// Erased records every user id passed to EraseUser.
	Erased []string

	EnsureErr error
	ListErr   error
	EraseErr  error
}

// EnsureUser implements [memory.UserDirectory].
func (d *UserDirectory) EnsureUser(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.EnsureErr != nil {
		return d.EnsureErr
	}
	for _, u := range d.Users {
		if u == userID {
			return nil
		}
	}
	d.Users = append(d.Users, userID)
	return nil
}

// ListUsers implements [memory.UserDirectory].
func (d *UserDirectory) ListUsers(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	return append([]string{}, d.Users...), nil
}

// EraseUser implements [memory.UserDirectory].
func (d *UserDirectory) EraseUser(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Erased = append(d.Erased, userID)
	if d.EraseErr != nil {
		return d.EraseErr
	}
	for i, u := range d.Users {
		if u == userID {
			d.Users = append(d.Users[:i], d.Users[i+1:]...)
			break
		}
	}
	return nil
}

// ── RawQuerier ──────────────────────────────────────────────────────────────

// RawQuerier is a scripted [memory.RawQuerier].
type RawQuerier struct {
	mu sync.Mutex

	// Rows is returned by every RunSelect call.
	Rows []string

	// Err is returned when non-nil.
	Err error

	// Statements records every statement passed to RunSelect.
	Statements []string
}

// RunSelect implements [memory.RawQuerier].
func (q *RawQuerier) RunSelect(_ context.Context, stmt string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Statements = append(q.Statements, stmt)
	if q.Err != nil {
		return nil, q.Err
	}
	return append([]string{}, q.Rows...), nil
}

// ── SemanticIndex ───────────────────────────────────────────────────────────

// SemanticIndex is an in-memory [memory.SemanticIndex]. Query returns
// fragments in upsert order; tests that need ranked output can set
// QueryFunc.
type SemanticIndex struct {
	mu sync.Mutex

	// Fragments maps userID to the upserted fragment texts in order.
	Fragments map[string][]string

	// Dropped records every userID passed to DropCollection.
	Dropped []string

	// Queries records every query text passed to Query.
	Queries []string

	// QueryFunc overrides the default upsert-order behaviour when non-nil.
	QueryFunc func(userID, text string, topN int) ([]string, error)

	UpsertErr error
	QueryErr  error
	DropErr   error
}

// Upsert implements [memory.SemanticIndex].
func (s *SemanticIndex) Upsert(_ context.Context, userID, text string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpsertErr != nil {
		return s.UpsertErr
	}
	if s.Fragments == nil {
		s.Fragments = make(map[string][]string)
	}
	s.Fragments[userID] = append(s.Fragments[userID], text)
	return nil
}

// Query implements [memory.SemanticIndex].
func (s *SemanticIndex) Query(_ context.Context, userID, text string, topN int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, text)
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	if s.QueryFunc != nil {
		return s.QueryFunc(userID, text, topN)
	}
	frags := s.Fragments[userID]
	if len(frags) > topN {
		frags = frags[:topN]
	}
	return append([]string{}, frags...), nil
}

// DropCollection implements [memory.SemanticIndex].
func (s *SemanticIndex) DropCollection(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Dropped = append(s.Dropped, userID)
	if s.DropErr != nil {
		return s.DropErr
	}
	delete(s.Fragments, userID)
	return nil
}
