// Package openai answers conversation turns with the OpenAI chat completions
// API. Any server speaking the same protocol (vLLM, LM Studio, LocalAI) can be
// targeted with WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/echovault/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// ErrNoChoices is returned when the server answers without any choice.
var ErrNoChoices = errors.New("openai: response has no choices")

// Provider is an llm.Provider for one chat model.
type Provider struct {
	client oai.Client
	model  string
}

// Option adjusts the underlying SDK client.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(ro *[]option.RequestOption) { *ro = append(*ro, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(ro *[]option.RequestOption) { *ro = append(*ro, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request. Zero keeps the SDK default.
func WithTimeout(d time.Duration) Option {
	return func(ro *[]option.RequestOption) {
		if d > 0 {
			*ro = append(*ro, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New returns a Provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}
	ro := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&ro)
	}
	return &Provider{client: oai.NewClient(ro...), model: model}, nil
}

// Complete sends the history and returns the first choice, trimmed.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: complete with %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	u := resp.Usage
	return &llm.CompletionResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := chatMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}

	out := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		out.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		out.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return out, nil
}

func chatMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown role %q", m.Role)
}
