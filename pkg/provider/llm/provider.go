// Package llm defines the Provider interface for the text-completion
// capability consumed by Mnemo.
//
// The same interface serves two purposes: conversational replies, and
// structured extraction (intent classification, time-range parsing, summary
// generation) by requesting JSON-object output mode.
//
// Implementors must be safe for concurrent use and should propagate context
// cancellation promptly.
package llm

import (
	"context"

	"github.com/lunavale/mnemo/pkg/types"
)

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []types.Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0].
	Temperature float64

	// JSONMode requests a JSON-object response format. Callers using it must
	// instruct the model to emit JSON in the prompt and must treat malformed
	// output as a dependency failure, not a crash.
	JSONMode bool
}

// Provider is the abstraction over any text-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response text.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
