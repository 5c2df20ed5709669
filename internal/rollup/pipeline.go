package rollup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lunavale/mnemo/pkg/memory"
	"github.com/lunavale/mnemo/pkg/provider/llm"
	"github.com/lunavale/mnemo/pkg/types"
)

// baseImportance is the default event salience per layer; the hierarchy
// invariant is that baseline importance strictly increases with layer.
func baseImportance(kind memory.SummaryKind) float64 {
	switch kind {
	case memory.SummaryMonthly:
		return 0.7
	case memory.SummaryYearly:
		return 0.9
	default:
		return 0.5
	}
}

const summarizerPromptFormat = `You are a professional memory architect. Your job is to distill conversation logs into high-level summaries.
Level: %s SUMMARY

Input: Chronological conversation logs or lower-level summaries.
Output: A JSON object with the following fields:
- "summary": (string) A narrative summary of the period.
- "key_events": (list of objects) [{"date": "YYYY-MM-DD", "event": "...", "importance": 0.1-1.0, "entities": ["tag1", "tag2"]}]
- "emotional_trend": (string) E.g., "Happy -> Anxious -> Relieved"
- "relationship_milestone": (string or null) Any major change in relationship status.

Ensure "key_events" contains 3-5 most significant items.
Ensure "importance" is a float between 0.1 and 1.0.`

// summaryPayload mirrors the JSON contract the summarisation model is
// instructed to emit.
type summaryPayload struct {
	Summary               string            `json:"summary"`
	KeyEvents             []memory.KeyEvent `json:"key_events"`
	EmotionalTrend        string            `json:"emotional_trend"`
	RelationshipMilestone string            `json:"relationship_milestone"`
}

// Pipeline condenses one completed period of lower-layer records into a
// higher-layer summary plus timeline entries.
type Pipeline struct {
	turns     memory.TurnStore
	summaries memory.SummaryStore
	timeline  memory.TimelineStore
	users     memory.UserDirectory
	provider  llm.Provider
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline constructs the rollup pipeline. The now function supplies the
// reference time for period windows; pass nil for time.Now.
func NewPipeline(
	turns memory.TurnStore,
	summaries memory.SummaryStore,
	timeline memory.TimelineStore,
	users memory.UserDirectory,
	provider llm.Provider,
	logger *slog.Logger,
	now func() time.Time,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		turns:     turns,
		summaries: summaries,
		timeline:  timeline,
		users:     users,
		provider:  provider,
		logger:    logger,
		now:       now,
	}
}

// Run executes the rollup of the given kind for every known user
// sequentially. A failure for one user is logged and never blocks the
// others; only listing the users can fail the whole run.
func (p *Pipeline) Run(ctx context.Context, kind memory.SummaryKind) error {
	if !kind.IsValid() {
		return fmt.Errorf("rollup: unknown kind %q", kind)
	}

	users, err := p.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("rollup: list users: %w", err)
	}

	p.logger.Info("rollup started", "kind", kind, "users", len(users))
	for _, userID := range users {
		if err := p.RunForUser(ctx, userID, kind); err != nil {
			p.logger.Warn("rollup failed for user", "kind", kind, "user_id", userID, "error", err)
		}
	}
	return nil
}

// RunForUser executes one rollup of the given kind for a single user. A
// period with no input records, or one already summarised, is a no-op.
func (p *Pipeline) RunForUser(ctx context.Context, userID string, kind memory.SummaryKind) error {
	start, end := periodWindow(kind, p.now())

	// Re-running must not double-write: reconciliation can race a live
	// calendar trigger for the same period.
	exists, err := p.summaries.Exists(ctx, userID, kind, start)
	if err != nil {
		return fmt.Errorf("rollup: check existing summary: %w", err)
	}
	if exists {
		p.logger.Debug("period already summarised", "kind", kind, "user_id", userID, "period_start", start)
		return nil
	}

	contextText, err := p.assembleContext(ctx, userID, kind, start, end)
	if err != nil {
		return err
	}
	if contextText == "" {
		return nil
	}

	payload, err := p.generate(ctx, kind, contextText)
	if err != nil {
		return err
	}
	if kind == memory.SummaryWeekly {
		payload.RelationshipMilestone = ""
	}

	summaryID, err := p.summaries.Add(ctx, memory.Summary{
		UserID:                userID,
		Kind:                  kind,
		PeriodStart:           start,
		Narrative:             payload.Summary,
		KeyEvents:             payload.KeyEvents,
		EmotionalTrend:        payload.EmotionalTrend,
		RelationshipMilestone: payload.RelationshipMilestone,
	})
	if err != nil {
		return fmt.Errorf("rollup: persist summary: %w", err)
	}

	memoryID := fmt.Sprintf("summary_%s_%d", kind, summaryID)
	for _, event := range payload.KeyEvents {
		dateKey := event.Date
		if dateKey == "" {
			dateKey = start.Format(memory.DateKeyLayout)
		}
		importance := event.Importance
		if importance == 0 {
			importance = baseImportance(kind)
		}
		entry := memory.TimelineEntry{
			UserID:     userID,
			DateKey:    dateKey,
			MemoryID:   memoryID,
			Layer:      kind.Layer(),
			Importance: importance,
			Entities:   event.Entities,
			Preview:    event.Event,
		}
		if err := p.timeline.Add(ctx, entry); err != nil {
			return fmt.Errorf("rollup: persist timeline entry: %w", err)
		}
	}

	p.logger.Info("rollup completed", "kind", kind, "user_id", userID,
		"period_start", start.Format(memory.DateKeyLayout), "key_events", len(payload.KeyEvents))
	return nil
}

// assembleContext builds the chronological input text for one rollup. An
// empty return means the period has no input and must be skipped.
func (p *Pipeline) assembleContext(ctx context.Context, userID string, kind memory.SummaryKind, start, end time.Time) (string, error) {
	switch kind {
	case memory.SummaryWeekly:
		turns, err := p.turns.Range(ctx, userID, start, end)
		if err != nil {
			return "", fmt.Errorf("rollup: load turns: %w", err)
		}
		lines := make([]string, 0, len(turns))
		for _, t := range turns {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", t.Timestamp.Format(time.DateTime), t.Role, t.Text))
		}
		return strings.Join(lines, "\n"), nil

	case memory.SummaryMonthly:
		weeks, err := p.summaries.Range(ctx, userID, memory.SummaryWeekly, start, end)
		if err != nil {
			return "", fmt.Errorf("rollup: load weekly summaries: %w", err)
		}
		lines := make([]string, 0, len(weeks))
		for _, w := range weeks {
			lines = append(lines, fmt.Sprintf("[Week %s] Summary: %s\nEvents: %s\nMood: %s",
				w.PeriodStart.Format(memory.DateKeyLayout), w.Narrative, formatEvents(w.KeyEvents), w.EmotionalTrend))
		}
		return strings.Join(lines, "\n"), nil

	case memory.SummaryYearly:
		months, err := p.summaries.Range(ctx, userID, memory.SummaryMonthly, start, end)
		if err != nil {
			return "", fmt.Errorf("rollup: load monthly summaries: %w", err)
		}
		lines := make([]string, 0, len(months))
		for _, m := range months {
			lines = append(lines, fmt.Sprintf("[Month %s] Summary: %s\nEvents: %s\nMilestones: %s",
				m.PeriodStart.Format(memory.DateKeyLayout), m.Narrative, formatEvents(m.KeyEvents), m.RelationshipMilestone))
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("rollup: unknown kind %q", kind)
}

// generate invokes the summarisation model and parses its structured output.
// Malformed output is a dependency failure; the whole period is skipped.
func (p *Pipeline) generate(ctx context.Context, kind memory.SummaryKind, contextText string) (*summaryPayload, error) {
	prompt := fmt.Sprintf(summarizerPromptFormat, strings.ToUpper(string(kind)))
	raw, err := p.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "Context:\n" + contextText},
		},
		Temperature: 0.2,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("rollup: summary generation: %w", err)
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("rollup: parse summary payload: %w", err)
	}
	return &payload, nil
}

// formatEvents renders key events compactly for higher-layer context input.
func formatEvents(events []memory.KeyEvent) string {
	if len(events) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Date, e.Event))
	}
	return strings.Join(parts, "; ")
}
