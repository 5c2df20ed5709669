package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunavale/mnemo/pkg/memory"
	"github.com/lunavale/mnemo/pkg/provider/llm"
	"github.com/lunavale/mnemo/pkg/types"
)

// DateRange is an inclusive calendar-day window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String renders the range as "2026-02-09 ~ 2026-02-15".
func (r DateRange) String() string {
	return r.Start.Format(memory.DateKeyLayout) + " ~ " + r.End.Format(memory.DateKeyLayout)
}

// TimeRangeExtractor turns a natural-language time reference ("last week",
// "in January") into a concrete [DateRange] using a completion model in
// JSON-object mode.
type TimeRangeExtractor struct {
	provider llm.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewTimeRangeExtractor returns an extractor backed by provider. The now
// function supplies the reference date; pass nil for time.Now.
func NewTimeRangeExtractor(provider llm.Provider, logger *slog.Logger, now func() time.Time) *TimeRangeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &TimeRangeExtractor{provider: provider, logger: logger, now: now}
}

// timeRangePayload mirrors the JSON contract the model is instructed to emit.
// Null or missing dates mean no time reference was found.
type timeRangePayload struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

const timeRangePromptFormat = `You are a precise time entity extraction system.
Current Date: %s (%s)

Extract the time range mentioned in the user's query relative to the Current
Date. If the query mentions a specific date or a relative time ("yesterday",
"last week", "January 30th", "two days ago"), calculate the precise start and
end dates.

Return ONLY a JSON object with:
- "start_date": "YYYY-MM-DD"
- "end_date": "YYYY-MM-DD"

If no specific time range is mentioned, return {"start_date": null, "end_date": null}.`

// Extract returns the date range referenced by query, or nil when the query
// carries no time reference. Provider failures and malformed payloads also
// yield nil; extraction never fails the enclosing retrieval.
func (e *TimeRangeExtractor) Extract(ctx context.Context, query string) *DateRange {
	ref := e.now()
	prompt := fmt.Sprintf(timeRangePromptFormat, ref.Format(memory.DateKeyLayout), ref.Weekday())

	raw, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: query},
		},
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		e.logger.Warn("time range extraction failed", "error", err)
		return nil
	}

	var payload timeRangePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		e.logger.Warn("time range extractor returned malformed JSON", "error", err)
		return nil
	}
	if payload.StartDate == nil || payload.EndDate == nil {
		return nil
	}

	start, err := time.ParseInLocation(memory.DateKeyLayout, *payload.StartDate, ref.Location())
	if err != nil {
		e.logger.Warn("time range extractor returned unparsable start date", "start_date", *payload.StartDate)
		return nil
	}
	end, err := time.ParseInLocation(memory.DateKeyLayout, *payload.EndDate, ref.Location())
	if err != nil {
		e.logger.Warn("time range extractor returned unparsable end date", "end_date", *payload.EndDate)
		return nil
	}
	if end.Before(start) {
		start, end = end, start
	}
	return &DateRange{Start: start, End: end}
}
