package resilience

import (
	"context"

	"github.com/MrWong99/echovault/pkg/provider/llm"
)

// LLMFallback tries a chain of language model backends in order.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a chain whose first backend is primary.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup("llm", primary, name, cfg)}
}

// AddFallback appends a backend tried after the existing ones.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, _, err := Execute(ctx, f.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	return resp, err
}
