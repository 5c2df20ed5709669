package retrieval_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lunavale/mnemo/internal/retrieval"
	"github.com/lunavale/mnemo/pkg/memory"
	memmock "github.com/lunavale/mnemo/pkg/memory/mock"
	llmmock "github.com/lunavale/mnemo/pkg/provider/llm/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newEngine(
	turns *memmock.TurnStore,
	semantic *memmock.SemanticIndex,
	raw *memmock.RawQuerier,
	classify *llmmock.Provider,
	timeRange *llmmock.Provider,
	opts ...retrieval.Option,
) *retrieval.Engine {
	logger := discardLogger()
	return retrieval.NewEngine(
		turns,
		semantic,
		raw,
		retrieval.NewClassifier(classify, logger),
		retrieval.NewTimeRangeExtractor(timeRange, logger, func() time.Time {
			return time.Date(2026, 2, 16, 10, 0, 0, 0, time.Local)
		}),
		logger,
		opts...,
	)
}

func TestRetrieveContext_ChatIntentSkipsRetrieval(t *testing.T) {
	t.Parallel()
	classify := &llmmock.Provider{Response: `{"intent": "chat", "keywords": []}`}
	semantic := &memmock.SemanticIndex{}
	e := newEngine(&memmock.TurnStore{}, semantic, &memmock.RawQuerier{}, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "hello there")
	if len(lines) != 0 {
		t.Errorf("chat intent should retrieve nothing, got %v", lines)
	}
	if len(semantic.Queries) != 0 {
		t.Error("chat intent should not query the semantic index")
	}
}

func TestRetrieveContext_MalformedClassifierFallsBackToChat(t *testing.T) {
	t.Parallel()
	classify := &llmmock.Provider{Response: `not json at all`}
	e := newEngine(&memmock.TurnStore{}, &memmock.SemanticIndex{}, &memmock.RawQuerier{}, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "anything")
	if len(lines) != 0 {
		t.Errorf("malformed classifier output should degrade to chat, got %v", lines)
	}
}

func TestRetrieveContext_ClassifierErrorFallsBackToChat(t *testing.T) {
	t.Parallel()
	classify := &llmmock.Provider{Err: errors.New("provider down")}
	e := newEngine(&memmock.TurnStore{}, &memmock.SemanticIndex{}, &memmock.RawQuerier{}, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "anything")
	if len(lines) != 0 {
		t.Errorf("classifier failure should degrade to chat, got %v", lines)
	}
}

func TestRetrieveContext_VectorSearchFusesKeywordMatches(t *testing.T) {
	t.Parallel()
	turns := &memmock.TurnStore{}
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.Local)
	for _, text := range []string{"my birthday is coming up", "the weather is nice"} {
		if err := turns.Append(context.Background(), "u1", memory.RoleUser, text, at); err != nil {
			t.Fatal(err)
		}
	}

	// No semantic contribution: the fused list must rank the birthday turn
	// purely by its keyword-list position.
	semantic := &memmock.SemanticIndex{}
	classify := &llmmock.Provider{Response: `{"intent": "vector_search", "keywords": ["birthday"]}`}
	e := newEngine(turns, semantic, &memmock.RawQuerier{}, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "Tell me about my birthday last week")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "birthday") {
		t.Errorf("fused result should contain the birthday turn, got %q", lines[0])
	}
}

func TestRetrieveContext_VectorSearchSurvivesSemanticFailure(t *testing.T) {
	t.Parallel()
	turns := &memmock.TurnStore{}
	at := time.Date(2026, 2, 10, 12, 0, 0, 0, time.Local)
	if err := turns.Append(context.Background(), "u1", memory.RoleUser, "we adopted a cat", at); err != nil {
		t.Fatal(err)
	}

	semantic := &memmock.SemanticIndex{QueryErr: errors.New("index unavailable")}
	classify := &llmmock.Provider{Response: `{"intent": "vector_search", "keywords": ["cat"]}`}
	e := newEngine(turns, semantic, &memmock.RawQuerier{}, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "what about the cat?")
	if len(lines) != 1 || !strings.Contains(lines[0], "cat") {
		t.Errorf("keyword path should survive semantic failure, got %v", lines)
	}
}

func TestRetrieveContext_StructuredPathRunsValidatedQuery(t *testing.T) {
	t.Parallel()
	raw := &memmock.RawQuerier{Rows: []string{"count=42"}}
	classify := &llmmock.Provider{
		Response: `{"intent": "sql_query", "keywords": [], "sql": "SELECT count(*) FROM turns WHERE user_id = '{user_id}'"}`,
	}
	e := newEngine(&memmock.TurnStore{}, &memmock.SemanticIndex{}, raw, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "how many messages did I send?")
	if len(lines) != 1 || lines[0] != "count=42" {
		t.Fatalf("got %v, want [count=42]", lines)
	}
	if len(raw.Statements) != 1 {
		t.Fatalf("expected one executed statement, got %d", len(raw.Statements))
	}
	if !strings.Contains(raw.Statements[0], "'u1'") {
		t.Errorf("user id should be substituted into the statement, got %q", raw.Statements[0])
	}
}

func TestRetrieveContext_StructuredPathRejectionIsAFact(t *testing.T) {
	t.Parallel()
	raw := &memmock.RawQuerier{}
	classify := &llmmock.Provider{
		Response: `{"intent": "sql_query", "keywords": [], "sql": "SELECT 1; DROP TABLE turns -- '{user_id}'"}`,
	}
	e := newEngine(&memmock.TurnStore{}, &memmock.SemanticIndex{}, raw, classify, &llmmock.Provider{})

	lines, _ := e.RetrieveContext(context.Background(), "u1", "delete everything")
	if len(lines) != 1 || !strings.Contains(lines[0], "Query rejected") {
		t.Fatalf("rejection should surface as a context line, got %v", lines)
	}
	if len(raw.Statements) != 0 {
		t.Error("rejected statement must never reach the store")
	}
}

func TestRetrieveContext_TimeScopedPathLabelsLines(t *testing.T) {
	t.Parallel()
	turns := &memmock.TurnStore{}
	for day := 9; day <= 15; day++ {
		at := time.Date(2026, 2, day, 20, 0, 0, 0, time.Local)
		if err := turns.Append(context.Background(), "u1", memory.RoleUser, "note from day", at); err != nil {
			t.Fatal(err)
		}
	}
	if err := turns.Append(context.Background(), "u1", memory.RoleUser, "my birthday party",
		time.Date(2026, 2, 12, 19, 0, 0, 0, time.Local)); err != nil {
		t.Fatal(err)
	}

	classify := &llmmock.Provider{Response: `{"intent": "hybrid_search", "keywords": ["birthday"]}`}
	timeRange := &llmmock.Provider{Response: `{"start_date": "2026-02-09", "end_date": "2026-02-15"}`}
	e := newEngine(turns, &memmock.SemanticIndex{}, &memmock.RawQuerier{}, classify, timeRange)

	lines, _ := e.RetrieveContext(context.Background(), "u1", "Tell me about my birthday last week")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "[2026-02-09 ~ 2026-02-15]") {
		t.Errorf("line should be labeled with the date range, got %q", lines[0])
	}
	if !strings.Contains(lines[0], "birthday") {
		t.Errorf("line should be the keyword match, got %q", lines[0])
	}
}

func TestRetrieveContext_TimeScopedSmallWindowFallback(t *testing.T) {
	t.Parallel()
	turns := &memmock.TurnStore{}
	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.Local)
	for _, text := range []string{"morning chat", "evening chat"} {
		if err := turns.Append(context.Background(), "u1", memory.RoleUser, text, at); err != nil {
			t.Fatal(err)
		}
	}

	// No turn matches the keyword; the window holds fewer than 20 rows, so
	// the unfiltered window is surfaced.
	classify := &llmmock.Provider{Response: `{"intent": "hybrid_search", "keywords": ["vacation"]}`}
	timeRange := &llmmock.Provider{Response: `{"start_date": "2026-02-09", "end_date": "2026-02-15"}`}
	e := newEngine(turns, &memmock.SemanticIndex{}, &memmock.RawQuerier{}, classify, timeRange)

	lines, _ := e.RetrieveContext(context.Background(), "u1", "what happened last week?")
	if len(lines) != 2 {
		t.Errorf("small unmatched window should fall back unfiltered, got %v", lines)
	}
}

func TestRetrieveContext_TimeScopedWithoutRangeDegradesToFused(t *testing.T) {
	t.Parallel()
	semantic := &memmock.SemanticIndex{}
	if err := semantic.Upsert(context.Background(), "u1", "we love hiking", nil); err != nil {
		t.Fatal(err)
	}

	classify := &llmmock.Provider{Response: `{"intent": "hybrid_search", "keywords": []}`}
	timeRange := &llmmock.Provider{Response: `{"start_date": null, "end_date": null}`}
	e := newEngine(&memmock.TurnStore{}, semantic, &memmock.RawQuerier{}, classify, timeRange)

	lines, _ := e.RetrieveContext(context.Background(), "u1", "remember hiking?")
	if len(lines) != 1 || lines[0] != "we love hiking" {
		t.Errorf("missing range should degrade to fused search, got %v", lines)
	}
}
