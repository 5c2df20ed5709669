// Package types holds shared value types used across Mnemo's provider and
// memory packages. Keeping them here avoids import cycles between the
// provider abstractions and the components that consume them.
package types

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Well-known message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
