// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the conversation layer sends
// correct CompletionRequests and to feed controlled replies without a live
// LLM backend.
//
// Example:
//
//	p := &mock.Provider{Replies: []string{"Hello!", "Goodbye."}}
//	resp, err := p.Complete(ctx, req) // "Hello!"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echovault/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is a deep copy of the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Complete resolves its result in this order: CompleteErr, CompleteFunc,
// the next entry of Replies, CompleteResponse.
type Provider struct {
	mu sync.Mutex

	// Replies are returned as response content one per call, in order.
	Replies []string

	// CompleteResponse is returned once Replies is exhausted. May be nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteFunc, when set, computes the response for each call.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	cp := req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: cp})
	if p.CompleteErr != nil {
		err := p.CompleteErr
		p.mu.Unlock()
		return nil, err
	}
	fn := p.CompleteFunc
	if fn == nil && len(p.Replies) > 0 {
		reply := p.Replies[0]
		p.Replies = p.Replies[1:]
		p.mu.Unlock()
		return &llm.CompletionResponse{Content: reply}, nil
	}
	resp := p.CompleteResponse
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, nil
}

// Calls returns a copy of the recorded Complete invocations.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
