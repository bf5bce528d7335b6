// Package conversation keeps the running dialogue with the response model.
//
// A [Responder] appends each user utterance to a bounded history, asks the
// configured [llm.Provider] for a reply and records the reply, so follow-up
// questions keep their context. History is trimmed by whole user/assistant
// pairs and always starts with a user message.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/pkg/provider/llm"
)

// Defaults applied by [New].
const (
	DefaultMaxTokens       = 1024
	DefaultMaxHistoryPairs = 10
	DefaultSystemPrompt    = "You are a helpful voice assistant called Jarvis. Keep your responses " +
		"concise and conversational, ideally 1-3 sentences unless the user asks for detail. " +
		"You are speaking out loud, so avoid markdown, bullet points, or formatting that " +
		"doesn't translate to speech."
)

// ErrEmptyInput is returned by [Responder.Respond] for blank user text.
var ErrEmptyInput = errors.New("conversation: empty input")

// Option configures a [Responder].
type Option func(*Responder)

// WithSystemPrompt replaces [DefaultSystemPrompt].
func WithSystemPrompt(prompt string) Option {
	return func(r *Responder) { r.systemPrompt = prompt }
}

// WithMaxTokens caps the reply length. Non-positive values keep the default.
func WithMaxTokens(n int) Option {
	return func(r *Responder) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithMaxHistoryPairs bounds the remembered user/assistant exchanges.
// Non-positive values keep the default.
func WithMaxHistoryPairs(n int) Option {
	return func(r *Responder) {
		if n > 0 {
			r.maxPairs = n
		}
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the provider
// default in place.
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}

// Responder answers user utterances with a bounded conversation history.
// All methods are safe for concurrent use; concurrent Respond calls are
// serialised so the history stays strictly alternating.
type Responder struct {
	provider     llm.Provider
	systemPrompt string
	maxTokens    int
	maxPairs     int
	temperature  float64
	metrics      *observe.Metrics

	mu      sync.Mutex
	history []llm.Message
}

// New returns a Responder backed by provider.
func New(provider llm.Provider, opts ...Option) *Responder {
	r := &Responder{
		provider:     provider,
		systemPrompt: DefaultSystemPrompt,
		maxTokens:    DefaultMaxTokens,
		maxPairs:     DefaultMaxHistoryPairs,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Respond sends text as the next user turn and returns the reply.
//
// On error, or when the model returns no text, the user turn is dropped from
// the history again so a retry starts from the same state.
func (r *Responder) Respond(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, llm.Message{Role: llm.RoleUser, Content: text})
	r.trim()

	req := llm.CompletionRequest{
		Messages:     append([]llm.Message(nil), r.history...),
		SystemPrompt: r.systemPrompt,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}

	start := time.Now()
	resp, err := r.provider.Complete(ctx, req)
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		r.history = r.history[:len(r.history)-1]
		return "", fmt.Errorf("conversation: respond: %w", err)
	}

	reply := ""
	if resp != nil {
		reply = strings.TrimSpace(resp.Content)
	}
	if reply == "" {
		r.history = r.history[:len(r.history)-1]
		return "", nil
	}
	r.history = append(r.history, llm.Message{Role: llm.RoleAssistant, Content: reply})

	if resp.Usage.TotalTokens > 0 {
		slog.Debug("conversation: reply", "tokens", resp.Usage.TotalTokens, "history", len(r.history))
	}
	return reply, nil
}

// trim drops the oldest exchanges until the history, including the pending
// user turn, fits in maxPairs pairs. Callers hold r.mu.
func (r *Responder) trim() {
	limit := r.maxPairs * 2
	for len(r.history) > limit && len(r.history) >= 2 {
		r.history = r.history[2:]
	}
}

// Apply changes the responder's settings at runtime, for example after a
// config reload. It waits for an in-flight Respond call and trims the
// history to a lowered pair limit straight away. WithMetrics is ignored.
func (r *Responder) Apply(opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics := r.metrics
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = metrics
	r.trim()
}

// ResetHistory forgets the conversation. Calling it with no history is a
// no-op.
func (r *Responder) ResetHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return
	}
	r.history = nil
	slog.Info("conversation: history cleared")
}

// History returns a copy of the current history.
func (r *Responder) History() []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]llm.Message(nil), r.history...)
}
