package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/echovault/pkg/provider/llm"
	llmmock "github.com/MrWong99/echovault/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{Replies: []string{"from claude"}}
	secondary := &llmmock.Provider{Replies: []string{"from openai"}}
	fb := NewLLMFallback(primary, "anthropic", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	req := llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	}
	resp, err := fb.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from claude" {
		t.Errorf("Content = %q, want from claude", resp.Content)
	}
	if len(secondary.Calls()) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.Calls()))
	}
	if got := primary.Calls()[0].Req.SystemPrompt; got != "be brief" {
		t.Errorf("SystemPrompt = %q", got)
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("overloaded")}
	secondary := &llmmock.Provider{Replies: []string{"from openai"}}
	fb := NewLLMFallback(primary, "anthropic", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from openai" {
		t.Errorf("Content = %q, want from openai", resp.Content)
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{CompleteErr: errTest}, "anthropic", FallbackConfig{})

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
	}
	if resp != nil {
		t.Errorf("resp = %+v, want nil", resp)
	}
}
