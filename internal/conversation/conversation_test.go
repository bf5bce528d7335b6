package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/echovault/pkg/provider/llm"
	llmmock "github.com/MrWong99/echovault/pkg/provider/llm/mock"
)

func TestRespond_SendsHistoryAndSettings(t *testing.T) {
	p := &llmmock.Provider{Replies: []string{"It is noon.", "Sunny."}}
	r := New(p, WithSystemPrompt("be brief"), WithMaxTokens(256), WithTemperature(0.3))
	ctx := context.Background()

	if got, err := r.Respond(ctx, "What time is it?"); err != nil || got != "It is noon." {
		t.Fatalf("Respond = %q, %v", got, err)
	}
	if got, err := r.Respond(ctx, "  And the weather?  "); err != nil || got != "Sunny." {
		t.Fatalf("Respond = %q, %v", got, err)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	req := calls[1].Req
	if req.SystemPrompt != "be brief" || req.MaxTokens != 256 || req.Temperature != 0.3 {
		t.Errorf("request settings = %+v", req)
	}
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "What time is it?"},
		{Role: llm.RoleAssistant, Content: "It is noon."},
		{Role: llm.RoleUser, Content: "And the weather?"},
	}
	if fmt.Sprint(req.Messages) != fmt.Sprint(want) {
		t.Errorf("messages = %v, want %v", req.Messages, want)
	}
}

func TestRespond_Defaults(t *testing.T) {
	p := &llmmock.Provider{Replies: []string{"hi"}}
	r := New(p, WithMaxTokens(0), WithMaxHistoryPairs(-1))
	if _, err := r.Respond(context.Background(), "hello"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	req := p.Calls()[0].Req
	if req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
	if req.MaxTokens != DefaultMaxTokens {
		t.Errorf("max tokens = %d, want %d", req.MaxTokens, DefaultMaxTokens)
	}
}

func TestRespond_TrimsByPairs(t *testing.T) {
	p := &llmmock.Provider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: "re: " + req.Messages[len(req.Messages)-1].Content}, nil
	}}
	r := New(p, WithMaxHistoryPairs(2))
	ctx := context.Background()

	for i := range 5 {
		if _, err := r.Respond(ctx, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("Respond %d: %v", i, err)
		}
	}

	for i, c := range p.Calls() {
		msgs := c.Req.Messages
		if len(msgs) > 4 {
			t.Errorf("call %d sent %d messages, want at most 4", i, len(msgs))
		}
		if msgs[0].Role != llm.RoleUser {
			t.Errorf("call %d history starts with %q", i, msgs[0].Role)
		}
	}
	last := p.Calls()[4].Req.Messages
	if last[0].Content != "q3" || last[len(last)-1].Content != "q4" {
		t.Errorf("last request = %v, want q3..q4", last)
	}
	if h := r.History(); len(h) != 4 {
		t.Errorf("history length = %d, want 4", len(h))
	}
}

func TestRespond_ErrorRollsBackUserTurn(t *testing.T) {
	p := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	r := New(p)

	_, err := r.Respond(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, p.CompleteErr) {
		t.Errorf("error %v does not wrap provider error", err)
	}
	if h := r.History(); len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestRespond_EmptyReply(t *testing.T) {
	p := &llmmock.Provider{Replies: []string{"   "}}
	r := New(p)

	got, err := r.Respond(context.Background(), "hello")
	if err != nil || got != "" {
		t.Fatalf("Respond = %q, %v; want empty reply and nil error", got, err)
	}
	if h := r.History(); len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestRespond_NilResponse(t *testing.T) {
	r := New(&llmmock.Provider{})
	got, err := r.Respond(context.Background(), "hello")
	if err != nil || got != "" {
		t.Fatalf("Respond = %q, %v", got, err)
	}
}

func TestRespond_EmptyInput(t *testing.T) {
	p := &llmmock.Provider{}
	r := New(p)
	if _, err := r.Respond(context.Background(), " \n"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
	if len(p.Calls()) != 0 {
		t.Error("provider called for empty input")
	}
}

func TestResetHistory(t *testing.T) {
	r := New(&llmmock.Provider{Replies: []string{"a"}})

	r.ResetHistory() // nothing to clear
	if _, err := r.Respond(context.Background(), "q"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if len(r.History()) != 2 {
		t.Fatalf("history length = %d, want 2", len(r.History()))
	}
	r.ResetHistory()
	r.ResetHistory()
	if len(r.History()) != 0 {
		t.Errorf("history not cleared: %v", r.History())
	}
}

func TestApply(t *testing.T) {
	p := &llmmock.Provider{Replies: []string{"a1", "a2", "a3", "a4"}}
	r := New(p, WithMaxHistoryPairs(3))
	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := r.Respond(context.Background(), q); err != nil {
			t.Fatalf("Respond(%q): %v", q, err)
		}
	}

	r.Apply(WithMaxHistoryPairs(1), WithSystemPrompt("Answer in French."), WithMaxTokens(64))

	h := r.History()
	if len(h) != 2 || h[0].Content != "q3" || h[1].Content != "a3" {
		t.Fatalf("history after Apply = %v, want only the last pair", h)
	}
	if _, err := r.Respond(context.Background(), "q4"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	last := p.Calls()[3].Req
	if last.SystemPrompt != "Answer in French." || last.MaxTokens != 64 {
		t.Errorf("request settings = %q / %d", last.SystemPrompt, last.MaxTokens)
	}
	if len(last.Messages) != 1 || last.Messages[0].Content != "q4" {
		t.Errorf("request messages = %v, want only q4", last.Messages)
	}
}
