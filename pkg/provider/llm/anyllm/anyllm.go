// Package anyllm answers conversation turns through
// github.com/mozilla-ai/any-llm-go, which puts Anthropic, Gemini, Ollama and
// several other hosted or local backends behind one completion API.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/echovault/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// wrap adapts a backend constructor returning its concrete type.
func wrap[P anyllmlib.Provider](fn func(...anyllmlib.Option) (P, error)) constructor {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return fn(opts...)
	}
}

var backends = map[string]constructor{
	"anthropic": wrap(anthropic.New),
	"deepseek":  wrap(deepseek.New),
	"gemini":    wrap(gemini.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
	"mistral":   wrap(mistral.New),
	"ollama":    wrap(ollama.New),
	"openai":    wrap(anyllmoai.New),
}

// Backends returns the accepted backend names, sorted.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}

// Provider is an llm.Provider for one model on one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New returns a Provider for model on the named backend (case-insensitive,
// see [Backends]). opts are passed to the backend; without
// anyllmlib.WithAPIKey it reads its usual environment variable, for example
// ANTHROPIC_API_KEY.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(backend)
	if model == "" {
		return nil, errors.New("anyllm: model is required")
	}
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q (want one of %s)", backend, strings.Join(Backends(), ", "))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s backend: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

// Name returns the lower-cased backend name.
func (p *Provider) Name() string { return p.name }

// Model returns the model identifier.
func (p *Provider) Model() string { return p.model }

// Complete sends the history and returns the first choice, trimmed.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anyllm: request has no messages")
	}
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s/%s: %w", p.name, p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s/%s returned no choices", p.name, p.model)
	}
	out := &llm.CompletionResponse{Content: strings.TrimSpace(resp.Choices[0].Message.ContentString())}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	out := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		out.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	return out
}
