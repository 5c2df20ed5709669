package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lunavale/mnemo/internal/observe"
	"github.com/lunavale/mnemo/internal/sqlguard"
	"github.com/lunavale/mnemo/pkg/memory"
)

const (
	// defaultTopN is the per-list candidate count for fused search.
	defaultTopN = 5

	// defaultMaxLines caps the memory lines injected per retrieval, and is
	// also the raw-window size under which an unmatched time-scoped search
	// falls back to the unfiltered window.
	defaultMaxLines = 20
)

// Engine composes the retrieval strategies into a single read-time surface.
// It owns no persistent state; every call is a pure composition over the
// turn store, the semantic index, and the raw-query path.
type Engine struct {
	turns      memory.TurnStore
	semantic   memory.SemanticIndex
	raw        memory.RawQuerier
	classifier *Classifier
	timeRange  *TimeRangeExtractor
	logger     *slog.Logger
	metrics    *observe.Metrics

	topN     int
	maxLines int
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithTopN overrides the per-list candidate count for fused search.
func WithTopN(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// WithMaxLines overrides the cap on memory lines injected per retrieval.
func WithMaxLines(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLines = n
		}
	}
}

// WithMetrics attaches metric instruments; without it the engine records
// nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine constructs the retrieval engine over the given stores and
// external capabilities.
func NewEngine(
	turns memory.TurnStore,
	semantic memory.SemanticIndex,
	raw memory.RawQuerier,
	classifier *Classifier,
	timeRange *TimeRangeExtractor,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		turns:      turns,
		semantic:   semantic,
		raw:        raw,
		classifier: classifier,
		timeRange:  timeRange,
		logger:     logger,
		topN:       defaultTopN,
		maxLines:   defaultMaxLines,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RetrieveContext classifies query and produces the ordered memory lines to
// surface as context for userID, along with the strategy that was routed
// to. A degraded external dependency yields an empty (or partial) result,
// never an error; the returned slice is non-nil.
func (e *Engine) RetrieveContext(ctx context.Context, userID, query string) ([]string, Strategy) {
	intent := e.classifier.Classify(ctx, query)
	e.logger.Debug("query classified", "user_id", userID, "strategy", intent.Strategy, "keywords", intent.Keywords)

	switch intent.Strategy {
	case StrategySQL:
		return e.structuredPath(ctx, userID, intent), intent.Strategy
	case StrategyVector:
		return e.fusedPath(ctx, userID, query, intent.Keywords), intent.Strategy
	case StrategyHybrid:
		return e.timeScopedPath(ctx, userID, query, intent.Keywords), intent.Strategy
	default:
		return []string{}, StrategyChat
	}
}

// structuredPath substitutes the user id into the proposed statement, gates
// it through the safety validator, and executes it. A validation rejection
// is returned as a context line, not an error, so the generation step sees
// it as a fact.
func (e *Engine) structuredPath(ctx context.Context, userID string, intent Intent) []string {
	stmt := SubstituteUserID(intent.ProposedSQL, userID)
	if err := sqlguard.Validate(stmt, userID); err != nil {
		e.logger.Warn("structured query rejected", "user_id", userID, "error", err)
		if e.metrics != nil {
			e.metrics.QueryRejections.Add(ctx, 1)
		}
		return []string{"Query rejected: " + err.Error()}
	}

	rows, err := e.raw.RunSelect(ctx, stmt)
	if err != nil {
		e.logger.Warn("structured query failed", "user_id", userID, "error", err)
		return []string{}
	}
	if len(rows) > e.maxLines {
		rows = rows[:e.maxLines]
	}
	return rows
}

// fusedPath runs the semantic and keyword searches concurrently and merges
// them with reciprocal rank fusion. Either list degrades to empty on failure.
func (e *Engine) fusedPath(ctx context.Context, userID, query string, keywords []string) []string {
	var semanticHits, keywordHits []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.semantic.Query(gctx, userID, query, e.topN)
		if err != nil {
			e.logger.Warn("semantic search failed", "user_id", userID, "error", err)
			return nil
		}
		semanticHits = hits
		return nil
	})
	g.Go(func() error {
		if len(keywords) == 0 {
			return nil
		}
		turns, err := e.turns.KeywordSearch(gctx, userID, keywords, e.topN)
		if err != nil {
			e.logger.Warn("keyword search failed", "user_id", userID, "error", err)
			return nil
		}
		for _, t := range turns {
			keywordHits = append(keywordHits, t.Text)
		}
		return nil
	})
	_ = g.Wait() // search closures swallow their own failures

	return TopTexts(Fuse(semanticHits, keywordHits), e.topN)
}

// timeScopedPath resolves a date range from the query, pulls raw turns in
// that window, and filters them by the extracted keywords. When no line
// matches and the window is small, the unfiltered window is surfaced
// instead. Without a resolvable range the path degrades to fused search.
func (e *Engine) timeScopedPath(ctx context.Context, userID, query string, keywords []string) []string {
	rng := e.timeRange.Extract(ctx, query)
	if rng == nil {
		return e.fusedPath(ctx, userID, query, keywords)
	}

	turns, err := e.turns.Range(ctx, userID, rng.Start, rng.End)
	if err != nil {
		e.logger.Warn("time-scoped search failed", "user_id", userID, "error", err)
		return []string{}
	}

	matched := turns
	if len(keywords) > 0 {
		matched = nil
		for _, t := range turns {
			if containsAny(t.Text, keywords) {
				matched = append(matched, t)
			}
		}
		if len(matched) == 0 && len(turns) < defaultMaxLines {
			matched = turns
		}
	}
	if len(matched) > e.maxLines {
		matched = matched[:e.maxLines]
	}

	label := "[" + rng.String() + "] "
	lines := make([]string, 0, len(matched))
	for _, t := range matched {
		lines = append(lines, label+t.Text)
	}
	return lines
}

// containsAny reports whether text contains any keyword as a literal
// substring.
func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
