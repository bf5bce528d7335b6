package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/echovault/pkg/provider/llm"
)

func TestChatMessage(t *testing.T) {
	sys, err := chatMessage(llm.Message{Role: llm.RoleSystem, Content: "You are Jarvis."})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: OfSystem not set (err=%v)", err)
	}
	usr, err := chatMessage(llm.Message{Role: llm.RoleUser, Content: "What time is it?"})
	if err != nil || usr.OfUser == nil {
		t.Fatalf("user: OfUser not set (err=%v)", err)
	}
	asst, err := chatMessage(llm.Message{Role: llm.RoleAssistant, Content: "Half past nine."})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: OfAssistant not set (err=%v)", err)
	}
	if got := asst.OfAssistant.Content.OfString.Value; got != "Half past nine." {
		t.Errorf("assistant content = %q", got)
	}
	if _, err := chatMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestParams(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.params(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Fatalf("expected system + user messages, got %d", len(params.Messages))
	}
	if params.MaxCompletionTokens.Value != 256 {
		t.Errorf("MaxCompletionTokens = %d, want 256", params.MaxCompletionTokens.Value)
	}
	if params.Temperature.Valid() {
		t.Error("zero temperature was sent")
	}

	if _, err := p.params(llm.CompletionRequest{}); err == nil {
		t.Error("request without messages accepted")
	}
	_, err = p.params(llm.CompletionRequest{Messages: []llm.Message{{Role: "tool"}}})
	if err == nil || !strings.Contains(err.Error(), "message 0") {
		t.Errorf("err = %v, want message index", err)
	}
}

// TestComplete_AgainstTestServer exercises the full request/response path.
func TestComplete_AgainstTestServer(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "It is sunny."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 4, "total_tokens": 13}
		}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Weather?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "It is sunny." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.PromptTokens != 9 {
		t.Errorf("PromptTokens = %d, want 9", resp.Usage.PromptTokens)
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("server saw model %q", gotModel)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "model": "m", "choices": []}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "m", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hi"}},
	})
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("err = %v, want ErrNoChoices", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		model   string
		opts    []Option
		wantErr bool
	}{
		{name: "missing key", model: "gpt-4o", wantErr: true},
		{name: "missing model", key: "sk-test", wantErr: true},
		{name: "plain", key: "sk-test", model: "gpt-4o"},
		{
			name: "with options", key: "sk-test", model: "gpt-4o",
			opts: []Option{WithBaseURL("https://llm.local/v1/"), WithOrganization("org-123"), WithTimeout(0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.key, tt.model, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
