// Package memory defines the hierarchical memory architecture used by Mnemo
// conversational agents.
//
// Memory is organised in four layers of increasing abstraction:
//
//   - Layer 0 – raw conversation turns ([TurnStore]): append-only utterance
//     log, the ground truth every higher layer is derived from.
//   - Layer 1 – weekly summaries, Layer 2 – monthly, Layer 3 – yearly
//     ([SummaryStore]): LLM-condensed narratives of completed periods.
//   - The timeline ([TimelineStore]): a flat, dated, importance-scored index
//     over all layers, used for time-scoped recall independent of semantic
//     similarity.
//
// Alongside the relational layers, [SemanticIndex] addresses an external
// nearest-neighbour text store through per-user collections.
//
// All interfaces are public so that external packages can supply alternative
// storage backends without depending on Mnemo internals. Every implementation
// must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// TurnStore is the layer-0 memory: a time-ordered, append-only log of
// conversation turns per user.
//
// Turns must be returned in chronological order unless otherwise specified.
type TurnStore interface {
	// Append writes one turn for userID, capturing at as the authoritative
	// timestamp. The user is created implicitly if unknown.
	Append(ctx context.Context, userID, role, text string, at time.Time) error

	// Recent returns the last limit turns for userID in chronological order.
	// Returns an empty (non-nil) slice when the user has no history.
	Recent(ctx context.Context, userID string, limit int) ([]Turn, error)

	// Range returns all turns for userID whose calendar day falls within
	// [from, to] inclusive, oldest first.
	Range(ctx context.Context, userID string, from, to time.Time) ([]Turn, error)

	// KeywordSearch returns up to limit turns for userID whose text contains
	// any of the given keywords as a literal substring, most recent first.
	// An empty keyword list matches nothing.
	KeywordSearch(ctx context.Context, userID string, keywords []string, limit int) ([]Turn, error)
}

// SummaryStore persists layer 1-3 summaries.
type SummaryStore interface {
	// Add inserts a new summary row and returns its id. Summaries are never
	// updated in place.
	Add(ctx context.Context, s Summary) (int64, error)

	// Range returns summaries of the given kind for userID whose period start
	// falls within [from, to] inclusive, ordered by period start ascending.
	Range(ctx context.Context, userID string, kind SummaryKind, from, to time.Time) ([]Summary, error)

	// Exists reports whether a summary of the given kind already exists for
	// (userID, periodStart). Used by the rollup pipeline to skip periods that
	// were already condensed, e.g. when reconciliation races a live trigger.
	Exists(ctx context.Context, userID string, kind SummaryKind, periodStart time.Time) (bool, error)
}

// TimelineStore maintains the dated importance index over all memory layers.
type TimelineStore interface {
	// Add appends one timeline entry. Entries are immutable after insertion.
	Add(ctx context.Context, e TimelineEntry) error

	// Range returns up to limit entries for userID whose date key falls
	// within [from, to] inclusive, ordered by importance descending then
	// layer descending.
	Range(ctx context.Context, userID string, from, to time.Time, limit int) ([]TimelineEntry, error)
}

// CheckpointStore persists the singleton lifecycle checkpoints used by the
// rollup scheduler to detect downtime spans.
type CheckpointStore interface {
	// Record upserts the checkpoint for key to at.
	Record(ctx context.Context, key CheckpointKey, at time.Time) error

	// Get returns the recorded timestamp for key. The boolean is false when
	// no checkpoint has been written yet.
	Get(ctx context.Context, key CheckpointKey) (time.Time, bool, error)
}

// UserDirectory enumerates and manages the known users.
type UserDirectory interface {
	// EnsureUser creates userID if it does not exist. Idempotent.
	EnsureUser(ctx context.Context, userID string) error

	// ListUsers returns all known user ids.
	// Returns an empty (non-nil) slice when no users exist.
	ListUsers(ctx context.Context) ([]string, error)

	// EraseUser removes every row owned by userID across turns, all three
	// summary layers, the timeline, and the user record itself. This is the
	// authoritative part of user-memory erasure; failures here must be
	// surfaced to the caller.
	EraseUser(ctx context.Context, userID string) error
}

// RawQuerier executes validator-accepted read-only statements and formats
// each result row as a single line of text for injection into a memory
// context. It exists solely for the structured retrieval path; callers must
// gate every statement through the query safety validator first.
type RawQuerier interface {
	RunSelect(ctx context.Context, stmt string) ([]string, error)
}

// SemanticIndex is the per-user collection abstraction over an external
// nearest-neighbour text store. The embedding computation and vector
// lifecycle are fully owned by the implementation; callers deal only in
// text.
type SemanticIndex interface {
	// Upsert stores one memory fragment for userID. metadata may be nil.
	Upsert(ctx context.Context, userID, text string, metadata map[string]string) error

	// Query returns up to topN fragment texts for userID ranked by semantic
	// similarity to text, most similar first.
	// Returns an empty (non-nil) slice when the collection is empty.
	Query(ctx context.Context, userID, text string, topN int) ([]string, error)

	// DropCollection removes the whole collection for userID. Dropping a
	// non-existent collection is not an error.
	DropCollection(ctx context.Context, userID string) error
}
