// Package retrieval implements the hybrid memory retrieval engine: intent
// routing, reciprocal rank fusion of semantic and keyword matches, the
// validated structured-query path, and time-scoped recall.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lunavale/mnemo/pkg/provider/llm"
	"github.com/lunavale/mnemo/pkg/types"
)

// Strategy is one of the closed set of retrieval strategies an incoming
// query can be routed to.
type Strategy string

const (
	// StrategyChat means no retrieval at all; the query is small talk.
	StrategyChat Strategy = "chat"

	// StrategySQL routes to the validated structured-query path.
	StrategySQL Strategy = "sql_query"

	// StrategyVector routes to rank-fused semantic plus keyword search.
	StrategyVector Strategy = "vector_search"

	// StrategyHybrid routes to time-scoped recall over raw turns.
	StrategyHybrid Strategy = "hybrid_search"
)

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyChat, StrategySQL, StrategyVector, StrategyHybrid:
		return true
	}
	return false
}

// UserIDPlaceholder is the token the classifier uses in proposed statements
// where the literal user id must be substituted.
const UserIDPlaceholder = "{user_id}"

// Intent is the classified retrieval plan for one query.
type Intent struct {
	// Strategy selects the retrieval path.
	Strategy Strategy

	// Keywords are literal search terms extracted from the query. May be
	// empty for any strategy.
	Keywords []string

	// ProposedSQL is the read statement proposed for StrategySQL, with
	// [UserIDPlaceholder] standing in for the user id. Empty otherwise.
	ProposedSQL string
}

// chatIntent is the universal fallback: no retrieval.
var chatIntent = Intent{Strategy: StrategyChat}

const classifierSystemPrompt = `You are a query intent classifier for a memory retrieval system.
Classify the user's message into exactly one intent:
- "chat": small talk or a message that needs no memory lookup
- "sql_query": a statistical or counting question about stored history (e.g. "how many times did we talk about X")
- "vector_search": a question about past facts, events, or preferences best answered by similarity search
- "hybrid_search": a question explicitly anchored to a time period (e.g. "last week", "in January")

Return ONLY a JSON object with:
- "intent": one of the four intent strings
- "keywords": array of literal search terms from the message (may be empty)
- "sql": for "sql_query" only, a single SELECT statement over the tables
  turns(user_id, role, text, timestamp), weekly_summaries, monthly_summaries,
  yearly_summaries, filtered by user_id = '{user_id}'. Omit otherwise.`

// Classifier routes queries to retrieval strategies using a completion model
// in JSON-object mode.
type Classifier struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewClassifier returns a Classifier backed by provider.
func NewClassifier(provider llm.Provider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{provider: provider, logger: logger}
}

// classifierPayload mirrors the JSON contract the model is instructed to emit.
type classifierPayload struct {
	Intent   string   `json:"intent"`
	Keywords []string `json:"keywords"`
	SQL      string   `json:"sql"`
}

// Classify returns the retrieval plan for query. Any provider failure or
// malformed payload degrades to the plain-chat intent; classification never
// fails the enclosing turn.
func (c *Classifier) Classify(ctx context.Context, query string) Intent {
	raw, err := c.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: query},
		},
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		c.logger.Warn("intent classification failed; falling back to chat", "error", err)
		return chatIntent
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.logger.Warn("intent classifier returned malformed JSON; falling back to chat", "error", err)
		return chatIntent
	}

	strategy := Strategy(payload.Intent)
	if !strategy.IsValid() {
		c.logger.Warn("intent classifier returned unknown intent; falling back to chat", "intent", payload.Intent)
		return chatIntent
	}

	intent := Intent{
		Strategy:    strategy,
		Keywords:    payload.Keywords,
		ProposedSQL: strings.TrimSpace(payload.SQL),
	}
	if strategy == StrategySQL && intent.ProposedSQL == "" {
		c.logger.Warn("sql_query intent without a proposed statement; falling back to chat")
		return chatIntent
	}
	return intent
}

// SubstituteUserID replaces every placeholder occurrence in stmt with the
// literal userID.
func SubstituteUserID(stmt, userID string) string {
	return strings.ReplaceAll(stmt, UserIDPlaceholder, userID)
}

// String implements fmt.Stringer for log output.
func (i Intent) String() string {
	return fmt.Sprintf("intent(%s keywords=%v)", i.Strategy, i.Keywords)
}
