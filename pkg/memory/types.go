package memory

import "time"

// Role identifies who produced a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DateKeyLayout is the calendar-day format used for timeline date keys and
// period labels throughout the memory subsystem.
const DateKeyLayout = "2006-01-02"

// Turn is a single layer-0 conversation record: one utterance by either the
// user or the assistant. Turns are append-only and immutable once written;
// sequence order is the authoritative ordering within a user's history.
//
// Timestamp is the local wall-clock time captured by the writing process at
// save time, never a database default, so that rollup windows are stable
// across deployments in different timezones.
type Turn struct {
	// ID is the store-assigned sequence id.
	ID int64

	// UserID is the owning user.
	UserID string

	// Role is RoleUser or RoleAssistant.
	Role string

	// Text is the utterance content.
	Text string

	// Timestamp is the local wall-clock write time.
	Timestamp time.Time
}

// SummaryKind selects one of the three rollup layers.
type SummaryKind string

const (
	SummaryWeekly  SummaryKind = "week"
	SummaryMonthly SummaryKind = "month"
	SummaryYearly  SummaryKind = "year"
)

// Layer returns the hierarchy layer for this kind: 1 for weekly, 2 for
// monthly, 3 for yearly. Layer 0 is the raw turn log.
func (k SummaryKind) Layer() int {
	switch k {
	case SummaryWeekly:
		return 1
	case SummaryMonthly:
		return 2
	case SummaryYearly:
		return 3
	}
	return 0
}

// IsValid reports whether k is a recognised summary kind.
func (k SummaryKind) IsValid() bool {
	return k.Layer() != 0
}

// KeyEvent is one salient event extracted during a rollup.
type KeyEvent struct {
	// Date is the calendar day of the event in DateKeyLayout format.
	Date string `json:"date"`

	// Event is a short description.
	Event string `json:"event"`

	// Importance is the event's salience in [0.1, 1.0].
	Importance float64 `json:"importance"`

	// Entities lists entity tags mentioned by the event.
	Entities []string `json:"entities"`
}

// Summary is a layer 1-3 condensation of one completed period of lower-layer
// records. Summaries are written once per (user, kind, period) and never
// updated in place; only full user-memory erasure removes them.
type Summary struct {
	// ID is the store-assigned id, unique within the summary's kind.
	ID int64

	// UserID is the owning user.
	UserID string

	// Kind is the rollup layer this summary belongs to.
	Kind SummaryKind

	// PeriodStart is the first calendar day of the summarised period
	// (Monday for weeks, the 1st for months, Jan 1 for years).
	PeriodStart time.Time

	// Narrative is the free-text summary of the period.
	Narrative string

	// KeyEvents are the 3-5 most significant events of the period.
	KeyEvents []KeyEvent

	// EmotionalTrend is a short label such as "Happy -> Anxious -> Relieved".
	EmotionalTrend string

	// RelationshipMilestone notes a major relationship change. Only
	// populated for monthly and yearly summaries; empty otherwise.
	RelationshipMilestone string

	// CreatedAt is when the summary row was written.
	CreatedAt time.Time
}

// TimelineEntry is a compact, dated, importance-scored pointer into a
// summary (layers 1-3) or a directly tagged raw memory (layer 0). The
// timeline is a read-only index for time-scoped recall; entries are never
// mutated after insertion.
type TimelineEntry struct {
	// ID is the store-assigned sequence id.
	ID int64

	// UserID is the owning user.
	UserID string

	// DateKey is the calendar day in DateKeyLayout format.
	DateKey string

	// MemoryID references the record that produced this entry, tagged by
	// layer (e.g. "summary_week_42").
	MemoryID string

	// Layer is the hierarchy layer (0-3) of the referenced memory.
	Layer int

	// Importance is the entry's salience in [0.0, 1.0]; higher is more
	// salient. Baseline importance increases with layer.
	Importance float64

	// Entities lists entity tags carried over from the source event.
	Entities []string

	// Preview is a short text preview for direct injection into context.
	Preview string
}

// CheckpointKey names one of the singleton lifecycle checkpoints used for
// downtime detection.
type CheckpointKey string

const (
	CheckpointStartup  CheckpointKey = "last_startup"
	CheckpointShutdown CheckpointKey = "last_shutdown"
)
