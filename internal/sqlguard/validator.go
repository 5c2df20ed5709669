// Package sqlguard validates model-generated SQL before it is allowed to
// touch the memory store.
//
// The structured retrieval path lets a language model propose a read-only
// statement over the user's own memory tables. sqlguard is the gatekeeper in
// front of that path: it accepts only SELECT statements, rejects every data
// or schema mutation verb, blocks system catalogs and the checkpoint table,
// and requires the statement to literally contain the current user's id as a
// scope filter.
//
// A rejection is a fact, not a fault: callers inject the rejection message
// into the memory context so the generation step can respond to it, instead
// of failing the turn.
package sqlguard

import (
	"fmt"
	"strings"
)

// forbiddenKeywords are the mutation and privilege verbs that disqualify a
// statement outright, matched case-insensitively anywhere in the text.
var forbiddenKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"DROP",
	"ALTER",
	"TRUNCATE",
	"REPLACE",
	"GRANT",
	"REVOKE",
}

// forbiddenReferences are schema objects generated statements may never
// touch: the server catalogs and the scheduler's checkpoint table.
var forbiddenReferences = []string{
	"PG_CATALOG",
	"INFORMATION_SCHEMA",
	"SYSTEM_STATE",
}

// RejectionError describes why a statement was refused. Its message is safe
// to surface verbatim in a memory context.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "sqlguard: " + e.Reason
}

// Validate checks stmt against the safety rules for user-scoped read-only
// statements. A nil return means the statement may be executed. A non-nil
// return is always a [*RejectionError].
func Validate(stmt, userID string) error {
	upper := strings.ToUpper(strings.TrimSpace(stmt))

	if !strings.HasPrefix(upper, "SELECT") {
		return &RejectionError{Reason: "only SELECT statements are allowed"}
	}

	for _, kw := range forbiddenKeywords {
		if strings.Contains(upper, kw) {
			return &RejectionError{Reason: fmt.Sprintf("forbidden keyword %q", kw)}
		}
	}

	for _, ref := range forbiddenReferences {
		if strings.Contains(upper, ref) {
			return &RejectionError{Reason: fmt.Sprintf("forbidden table or catalog reference %q", ref)}
		}
	}

	// Literal containment of the user id is a deliberately cheap scope check:
	// the statement generator is instructed to filter by user_id, and a
	// statement that never mentions the id cannot be scoped to it. It is
	// necessary, not sufficient.
	if userID == "" || !strings.Contains(stmt, userID) {
		return &RejectionError{Reason: "statement must be scoped to the current user id"}
	}

	return nil
}
