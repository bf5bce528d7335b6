package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/echovault/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(16000)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	if _, ok := q["keywords"]; ok {
		t.Error("expected no 'keywords' param when none provided")
	}
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key",
		WithModel("base"),
		WithLanguage("de-DE"),
		WithKeywords(Keyword{Word: "Jarvis", Boost: 5}, Keyword{Word: "EchoVault", Boost: 2.5}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(48000)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	kws := q["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(kws))
	}
	assertEqual(t, "keyword[0]", "Jarvis:5", kws[0])
	assertEqual(t, "keyword[1]", "EchoVault:2.5", kws[1])
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantText  string
		wantFinal bool
		wantOK    bool
	}{
		{
			name:      "final",
			raw:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" Hello world ","confidence":0.95}]}}`,
			wantText:  "Hello world",
			wantFinal: true,
			wantOK:    true,
		},
		{
			name:     "partial",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello"}]}}`,
			wantText: "Hello",
			wantOK:   true,
		},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, final, ok := parseDeepgramResponse([]byte(tc.raw))
			if ok != tc.wantOK || final != tc.wantFinal || text != tc.wantText {
				t.Errorf("got (%q, %v, %v), want (%q, %v, %v)", text, final, ok, tc.wantText, tc.wantFinal, tc.wantOK)
			}
		})
	}
}

// ---- Transcribe against a fake streaming server ----

func newFakeDeepgram(t *testing.T, received *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				received.Add(int64(len(msg)))
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what"}]}}`))
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"What time"}]}}`))
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"is it?"}]}}`))
				_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata","request_id":"r1"}`))
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe_JoinsFinals(t *testing.T) {
	var received atomic.Int64
	srv := newFakeDeepgram(t, &received)

	p, err := New("test-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := make([]int16, 4000) // 250 ms at 16 kHz, sent as three chunks
	text, err := p.Transcribe(context.Background(), samples, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "What time is it?", text)
	if received.Load() != int64(len(samples)*2) {
		t.Errorf("server received %d bytes, want %d", received.Load(), len(samples)*2)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("test-key")
	if _, err := p.Transcribe(context.Background(), nil, 16000); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	var received atomic.Int64
	srv := newFakeDeepgram(t, &received)

	p, _ := New("wrong-key", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if _, err := p.Transcribe(context.Background(), make([]int16, 160), 16000); err == nil {
		t.Fatal("expected dial error for rejected credentials")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	assertEqual(t, "endpoint", deepgramEndpoint, p.endpoint)
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
