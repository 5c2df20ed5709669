package postgres_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/lunavale/mnemo/pkg/memory"
	"github.com/lunavale/mnemo/pkg/memory/postgres"
	embedmock "github.com/lunavale/mnemo/pkg/provider/embeddings/mock"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if MNEMO_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MNEMO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MNEMO_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema and a
// deterministic mock embedder. It calls t.Cleanup to close the store when the
// test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	// Use a bare pool to drop and recreate the schema.
	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	embedder := &embedmock.Provider{Dim: testEmbeddingDim, EmbedFunc: testEmbedding}
	store, err := postgres.NewStore(ctx, dsn, embedder, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// testEmbedding maps texts to fixed unit vectors so similarity ordering is
// deterministic: texts sharing a topic word land on the same axis.
func testEmbedding(text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "cat"):
		return []float32{1, 0, 0, 0}, nil
	case strings.Contains(lower, "piano"):
		return []float32{0, 1, 0, 0}, nil
	case strings.Contains(lower, "work"):
		return []float32{0, 0, 1, 0}, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

// mustPool opens a pgxpool with pgvector types registered (needed for the
// HNSW index to not refuse our connection during dropSchema).
func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// best-effort: pgvector may not be installed yet on a fresh DB
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

// dropSchema removes all tables created by Migrate in reverse dependency order.
func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS memory_fragments CASCADE",
		"DROP TABLE IF EXISTS system_state CASCADE",
		"DROP TABLE IF EXISTS memory_timeline CASCADE",
		"DROP TABLE IF EXISTS yearly_summaries CASCADE",
		"DROP TABLE IF EXISTS monthly_summaries CASCADE",
		"DROP TABLE IF EXISTS weekly_summaries CASCADE",
		"DROP TABLE IF EXISTS turns CASCADE",
		"DROP TABLE IF EXISTS users CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

func day(value string) time.Time {
	d, err := time.Parse(memory.DateKeyLayout, value)
	if err != nil {
		panic(err)
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Layer 0 — TurnStore
// ─────────────────────────────────────────────────────────────────────────────

func TestTurns_AppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	turns := store.Turns()

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	texts := []string{"good morning", "how did you sleep?", "pretty well, thanks"}
	for i, txt := range texts {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		if err := turns.Append(ctx, "u1", role, txt, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Append[%d]: %v", i, err)
		}
	}

	// Recent returns the tail in chronological order.
	recent, err := turns.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent: want 2, got %d", len(recent))
	}
	if recent[0].Text != texts[1] || recent[1].Text != texts[2] {
		t.Errorf("Recent order: got %q then %q", recent[0].Text, recent[1].Text)
	}

	// The wall-clock timestamp round-trips exactly.
	if !recent[1].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("Timestamp: want %v, got %v", base.Add(2*time.Minute), recent[1].Timestamp)
	}

	// Unknown user yields an empty, non-nil slice.
	none, err := turns.Recent(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("Recent nobody: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Recent nobody: want empty non-nil, got %v", none)
	}

	// Append created the user implicitly.
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("ListUsers: want [u1], got %v", users)
	}
}

func TestTurns_RangeByCalendarDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	turns := store.Turns()

	for _, tc := range []struct {
		text string
		at   time.Time
	}{
		{"monday morning", time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)},
		{"monday evening", time.Date(2026, 2, 9, 22, 30, 0, 0, time.UTC)},
		{"wednesday", time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)},
		{"next week", time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)},
	} {
		if err := turns.Append(ctx, "u1", memory.RoleUser, tc.text, tc.at); err != nil {
			t.Fatalf("Append %q: %v", tc.text, err)
		}
	}

	// Both bounds are inclusive and compare on the calendar day.
	got, err := turns.Range(ctx, "u1", day("2026-02-09"), day("2026-02-15"))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Range: want 3, got %d", len(got))
	}
	if got[0].Text != "monday morning" || got[2].Text != "wednesday" {
		t.Errorf("Range order: got %q .. %q", got[0].Text, got[2].Text)
	}

	// A single-day window catches late-evening turns of that day.
	mon, err := turns.Range(ctx, "u1", day("2026-02-09"), day("2026-02-09"))
	if err != nil {
		t.Fatalf("Range monday: %v", err)
	}
	if len(mon) != 2 {
		t.Errorf("Range monday: want 2, got %d", len(mon))
	}
}

func TestTurns_KeywordSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	turns := store.Turns()

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	for i, txt := range []string{
		"my birthday is in March",
		"I started a new job",
		"planning a birthday party",
	} {
		if err := turns.Append(ctx, "u1", memory.RoleUser, txt, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Most recent match first.
	got, err := turns.KeywordSearch(ctx, "u1", []string{"birthday"}, 10)
	if err != nil {
		t.Fatalf("KeywordSearch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("KeywordSearch: want 2, got %d", len(got))
	}
	if !strings.Contains(got[0].Text, "party") {
		t.Errorf("KeywordSearch order: want party first, got %q", got[0].Text)
	}

	// Keywords are OR-combined.
	either, err := turns.KeywordSearch(ctx, "u1", []string{"job", "March"}, 10)
	if err != nil {
		t.Fatalf("KeywordSearch either: %v", err)
	}
	if len(either) != 2 {
		t.Errorf("KeywordSearch either: want 2, got %d", len(either))
	}

	// Empty keyword list matches nothing.
	none, err := turns.KeywordSearch(ctx, "u1", nil, 10)
	if err != nil {
		t.Fatalf("KeywordSearch empty: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("KeywordSearch empty: want 0, got %d", len(none))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Layers 1-3 — SummaryStore
// ─────────────────────────────────────────────────────────────────────────────

func TestSummaries_AddRangeExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	summaries := store.Summaries()

	if err := store.EnsureUser(ctx, "u1"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	weekly := memory.Summary{
		UserID:      "u1",
		Kind:        memory.SummaryWeekly,
		PeriodStart: day("2026-02-09"),
		Narrative:   "A calm week with one big change at work.",
		KeyEvents: []memory.KeyEvent{
			{Date: "2026-02-11", Event: "Accepted the new role", Importance: 0.9, Entities: []string{"work"}},
		},
		EmotionalTrend: "Nervous -> Excited",
	}
	id, err := summaries.Add(ctx, weekly)
	if err != nil {
		t.Fatalf("Add weekly: %v", err)
	}
	if id == 0 {
		t.Error("Add weekly: want non-zero id")
	}

	monthly := weekly
	monthly.Kind = memory.SummaryMonthly
	monthly.PeriodStart = day("2026-02-01")
	monthly.RelationshipMilestone = "First month of daily check-ins"
	if _, err := summaries.Add(ctx, monthly); err != nil {
		t.Fatalf("Add monthly: %v", err)
	}

	// Range is scoped to one kind.
	got, err := summaries.Range(ctx, "u1", memory.SummaryWeekly, day("2026-01-01"), day("2026-12-31"))
	if err != nil {
		t.Fatalf("Range weekly: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Range weekly: want 1, got %d", len(got))
	}
	if got[0].Narrative != weekly.Narrative {
		t.Errorf("Narrative: want %q, got %q", weekly.Narrative, got[0].Narrative)
	}
	if len(got[0].KeyEvents) != 1 || got[0].KeyEvents[0].Importance != 0.9 {
		t.Errorf("KeyEvents round-trip: got %+v", got[0].KeyEvents)
	}

	// Milestone round-trips on the monthly table.
	months, err := summaries.Range(ctx, "u1", memory.SummaryMonthly, day("2026-01-01"), day("2026-12-31"))
	if err != nil {
		t.Fatalf("Range monthly: %v", err)
	}
	if len(months) != 1 || months[0].RelationshipMilestone != monthly.RelationshipMilestone {
		t.Errorf("monthly milestone: got %+v", months)
	}

	// Exists matches on (user, kind, period start).
	ok, err := summaries.Exists(ctx, "u1", memory.SummaryWeekly, day("2026-02-09"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists: want true for summarised week")
	}
	ok, err = summaries.Exists(ctx, "u1", memory.SummaryWeekly, day("2026-02-16"))
	if err != nil {
		t.Fatalf("Exists next week: %v", err)
	}
	if ok {
		t.Error("Exists: want false for unsummarised week")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// TimelineStore
// ─────────────────────────────────────────────────────────────────────────────

func TestTimeline_RangeOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	timeline := store.Timeline()

	if err := store.EnsureUser(ctx, "u1"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}

	for _, e := range []memory.TimelineEntry{
		{UserID: "u1", DateKey: "2026-02-10", MemoryID: "summary_week_1", Layer: 1, Importance: 0.5, Preview: "quiet week"},
		{UserID: "u1", DateKey: "2026-02-11", MemoryID: "summary_month_1", Layer: 2, Importance: 0.9, Preview: "moved cities"},
		{UserID: "u1", DateKey: "2026-02-12", MemoryID: "summary_week_2", Layer: 1, Importance: 0.9, Preview: "new job"},
		{UserID: "u1", DateKey: "2026-03-01", MemoryID: "summary_week_3", Layer: 1, Importance: 1.0, Preview: "outside window"},
	} {
		if err := timeline.Add(ctx, e); err != nil {
			t.Fatalf("Add %s: %v", e.MemoryID, err)
		}
	}

	got, err := timeline.Range(ctx, "u1", day("2026-02-09"), day("2026-02-15"), 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Range: want 3, got %d", len(got))
	}
	// Importance descending, higher layer breaking the tie.
	if got[0].MemoryID != "summary_month_1" || got[1].MemoryID != "summary_week_2" {
		t.Errorf("Range order: got %s, %s, %s", got[0].MemoryID, got[1].MemoryID, got[2].MemoryID)
	}

	capped, err := timeline.Range(ctx, "u1", day("2026-02-09"), day("2026-02-15"), 1)
	if err != nil {
		t.Fatalf("Range capped: %v", err)
	}
	if len(capped) != 1 || capped[0].MemoryID != "summary_month_1" {
		t.Errorf("Range capped: got %v", capped)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CheckpointStore
// ─────────────────────────────────────────────────────────────────────────────

func TestCheckpoints_RecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	checkpoints := store.Checkpoints()

	// Missing checkpoint reports ok=false without error.
	_, ok, err := checkpoints.Get(ctx, memory.CheckpointShutdown)
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if ok {
		t.Error("Get missing: want ok=false")
	}

	first := time.Date(2026, 2, 13, 18, 0, 0, 0, time.UTC)
	if err := checkpoints.Record(ctx, memory.CheckpointShutdown, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, ok, err := checkpoints.Get(ctx, memory.CheckpointShutdown)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || !got.Equal(first) {
		t.Errorf("Get: want %v ok=true, got %v ok=%v", first, got, ok)
	}

	// Record upserts in place.
	second := first.Add(72 * time.Hour)
	if err := checkpoints.Record(ctx, memory.CheckpointShutdown, second); err != nil {
		t.Fatalf("Record upsert: %v", err)
	}
	got, _, err = checkpoints.Get(ctx, memory.CheckpointShutdown)
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("Get after upsert: want %v, got %v", second, got)
	}

	// Keys are independent.
	_, ok, err = checkpoints.Get(ctx, memory.CheckpointStartup)
	if err != nil {
		t.Fatalf("Get startup: %v", err)
	}
	if ok {
		t.Error("Get startup: want ok=false, shutdown key must not leak")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// UserDirectory — erase isolation
// ─────────────────────────────────────────────────────────────────────────────

func TestEraseUser_LeavesOtherUsersIntact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	for _, userID := range []string{"u1", "u2"} {
		if err := store.Turns().Append(ctx, userID, memory.RoleUser, "hello from "+userID, at); err != nil {
			t.Fatalf("Append %s: %v", userID, err)
		}
		if _, err := store.Summaries().Add(ctx, memory.Summary{
			UserID:      userID,
			Kind:        memory.SummaryWeekly,
			PeriodStart: day("2026-02-09"),
			Narrative:   "week of " + userID,
		}); err != nil {
			t.Fatalf("Add summary %s: %v", userID, err)
		}
		if err := store.Timeline().Add(ctx, memory.TimelineEntry{
			UserID: userID, DateKey: "2026-02-10", MemoryID: "summary_week_1",
			Layer: 1, Importance: 0.8, Preview: "week of " + userID,
		}); err != nil {
			t.Fatalf("Add timeline %s: %v", userID, err)
		}
	}

	if err := store.EraseUser(ctx, "u1"); err != nil {
		t.Fatalf("EraseUser: %v", err)
	}

	// Every u1 layer is empty.
	turns, err := store.Turns().Recent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recent u1: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("u1 turns after erase: want 0, got %d", len(turns))
	}
	sums, err := store.Summaries().Range(ctx, "u1", memory.SummaryWeekly, day("2026-01-01"), day("2026-12-31"))
	if err != nil {
		t.Fatalf("Range u1: %v", err)
	}
	if len(sums) != 0 {
		t.Errorf("u1 summaries after erase: want 0, got %d", len(sums))
	}
	entries, err := store.Timeline().Range(ctx, "u1", day("2026-01-01"), day("2026-12-31"), 10)
	if err != nil {
		t.Fatalf("Timeline u1: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("u1 timeline after erase: want 0, got %d", len(entries))
	}

	// u2 is untouched on every layer.
	turns, err = store.Turns().Recent(ctx, "u2", 10)
	if err != nil {
		t.Fatalf("Recent u2: %v", err)
	}
	if len(turns) != 1 {
		t.Errorf("u2 turns: want 1, got %d", len(turns))
	}
	sums, err = store.Summaries().Range(ctx, "u2", memory.SummaryWeekly, day("2026-01-01"), day("2026-12-31"))
	if err != nil {
		t.Fatalf("Range u2: %v", err)
	}
	if len(sums) != 1 {
		t.Errorf("u2 summaries: want 1, got %d", len(sums))
	}
	entries, err = store.Timeline().Range(ctx, "u2", day("2026-01-01"), day("2026-12-31"), 10)
	if err != nil {
		t.Fatalf("Timeline u2: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("u2 timeline: want 1, got %d", len(entries))
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0] != "u2" {
		t.Errorf("ListUsers after erase: want [u2], got %v", users)
	}

	// Erasing a user that never existed is not an error.
	if err := store.EraseUser(ctx, "ghost"); err != nil {
		t.Errorf("EraseUser ghost: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SemanticIndex
// ─────────────────────────────────────────────────────────────────────────────

func TestSemantic_UpsertQueryDrop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	semantic := store.Semantic()

	fragments := []string{
		"User: I adopted a cat named Miso",
		"User: started piano lessons on Tuesdays",
		"User: work has been stressful lately",
	}
	for _, f := range fragments {
		if err := semantic.Upsert(ctx, "u1", f, map[string]string{"role": "user"}); err != nil {
			t.Fatalf("Upsert %q: %v", f, err)
		}
	}
	if err := semantic.Upsert(ctx, "u2", "User: my cat knocked over a plant", nil); err != nil {
		t.Fatalf("Upsert u2: %v", err)
	}

	// Most similar fragment first.
	got, err := semantic.Query(ctx, "u1", "how is the cat doing", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query: want 2, got %d", len(got))
	}
	if !strings.Contains(got[0], "Miso") {
		t.Errorf("Query: want cat fragment first, got %q", got[0])
	}

	// Collections do not leak across users.
	other, err := semantic.Query(ctx, "u2", "tell me about the cat", 10)
	if err != nil {
		t.Fatalf("Query u2: %v", err)
	}
	if len(other) != 1 || strings.Contains(other[0], "Miso") {
		t.Errorf("Query u2: want only u2's fragment, got %v", other)
	}

	// DropCollection removes one user's fragments only.
	if err := semantic.DropCollection(ctx, "u1"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	empty, err := semantic.Query(ctx, "u1", "cat", 10)
	if err != nil {
		t.Fatalf("Query after drop: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Query after drop: want empty non-nil, got %v", empty)
	}
	kept, err := semantic.Query(ctx, "u2", "cat", 10)
	if err != nil {
		t.Fatalf("Query u2 after drop: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("Query u2 after drop: want 1, got %d", len(kept))
	}

	// Dropping a collection that never existed is not an error.
	if err := semantic.DropCollection(ctx, "ghost"); err != nil {
		t.Errorf("DropCollection ghost: %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// RawQuerier
// ─────────────────────────────────────────────────────────────────────────────

func TestRawQuerier_RunSelect(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	if err := store.Turns().Append(ctx, "u1", memory.RoleUser, "hello there", at); err != nil {
		t.Fatalf("Append: %v", err)
	}

	lines, err := store.Raw().RunSelect(ctx, "SELECT role, text FROM turns WHERE user_id = 'u1'")
	if err != nil {
		t.Fatalf("RunSelect: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("RunSelect: want 1 line, got %d", len(lines))
	}
	if lines[0] != "role=user, text=hello there" {
		t.Errorf("RunSelect formatting: got %q", lines[0])
	}

	// No matching rows yields an empty, non-nil slice.
	none, err := store.Raw().RunSelect(ctx, "SELECT text FROM turns WHERE user_id = 'nobody'")
	if err != nil {
		t.Fatalf("RunSelect none: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("RunSelect none: want empty non-nil, got %v", none)
	}

	// Syntactically invalid statements surface the driver error.
	if _, err := store.Raw().RunSelect(ctx, "SELECT FROM nothing"); err == nil {
		t.Error("RunSelect invalid: expected error, got nil")
	}
}
