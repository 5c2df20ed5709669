// Package mock provides a configurable test double for the LLM provider
// interface. It records every request for assertion in tests.
package mock

import (
	"context"
	"sync"

	"github.com/lunavale/mnemo/pkg/provider/llm"
)

// Ensure Provider satisfies the interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider is a configurable test double for [llm.Provider].
//
// Responses are served from the Responses queue in order; when the queue is
// exhausted, Response is returned. CompleteFunc, when set, overrides both.
type Provider struct {
	mu sync.Mutex

	// Response is the fallback completion text.
	Response string

	// Responses is a FIFO queue of completion texts, consumed one per call.
	Responses []string

	// Err is returned by Complete when non-nil.
	Err error

	// CompleteFunc overrides the queued-response behaviour when non-nil.
	CompleteFunc func(req llm.CompletionRequest) (string, error)

	// Requests records every request passed to Complete.
	Requests []llm.CompletionRequest
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	if p.CompleteFunc != nil {
		return p.CompleteFunc(req)
	}
	if len(p.Responses) > 0 {
		resp := p.Responses[0]
		p.Responses = p.Responses[1:]
		return resp, nil
	}
	return p.Response, nil
}

// CallCount returns how many times Complete was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
