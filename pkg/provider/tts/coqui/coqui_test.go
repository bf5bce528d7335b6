package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// ---- helpers ----

func drainAudio(ch <-chan []byte) []byte {
	var out []byte
	for b := range ch {
		out = append(out, b...)
	}
	return out
}

func mustNew(t *testing.T, url string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(url, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---- constructor ----

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts []Option
	}{
		{"empty url", "", nil},
		{"xtts without speaker", "http://x", []Option{WithAPIMode(APIModeXTTS)}},
		{"unknown mode", "http://x", []Option{WithAPIMode("bark")}},
		{"bad rate", "http://x", []Option{WithOutputSampleRate(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.url, tt.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p := mustNew(t, "http://localhost:5002/")
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q", p.serverURL)
	}
	if p.SampleRate() != defaultOutputRate {
		t.Errorf("SampleRate = %d, want %d", p.SampleRate(), defaultOutputRate)
	}
	if p.apiMode != APIModeStandard {
		t.Errorf("apiMode = %q", p.apiMode)
	}
}

// ---- standard mode ----

func TestSynthesizeStream_Standard(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("speaker_id") != "p225" || q.Get("language_id") != "en" {
			http.Error(w, "bad params", http.StatusBadRequest)
			return
		}
		mu.Lock()
		texts = append(texts, q.Get("text"))
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio.EncodeWAV([]int16{1, 2, 3, 4}, 22050))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithSpeaker("p225"))
	audioCh, err := p.SynthesizeStream(context.Background(), tts.Text("Hello world. Are you there?"))
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	pcm := drainAudio(audioCh)
	if len(pcm) != 16 {
		t.Errorf("pcm length = %d, want 16 (two sentences of 4 samples)", len(pcm))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 {
		t.Fatalf("server received %d requests, want 2: %v", len(texts), texts)
	}
}

func TestSynthesizeStream_Resamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(audio.EncodeWAV(make([]int16, 1600), 16000))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithOutputSampleRate(48000))
	audioCh, _ := p.SynthesizeStream(context.Background(), tts.Text("Hi."))
	pcm := drainAudio(audioCh)
	if got := len(pcm) / 2; got != 4800 {
		t.Errorf("samples = %d, want 4800", got)
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	audioCh, err := p.SynthesizeStream(context.Background(), tts.Text("Hello."))
	if err != nil {
		t.Fatalf("SynthesizeStream start unexpected error: %v", err)
	}
	if pcm := drainAudio(audioCh); len(pcm) != 0 {
		t.Errorf("expected empty audio on server error, got %d bytes", len(pcm))
	}
}

func TestSynthesizeStream_RejectsStereo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wav := audio.EncodeWAV([]int16{1, 2}, 22050)
		wav[22] = 2 // channels
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.synthesize(context.Background(), "Hi."); err == nil {
		t.Error("expected error for stereo audio")
	}
}

// ---- XTTS mode ----

func TestSynthesizeStream_XTTS(t *testing.T) {
	var got xttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != xttsEndpoint {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(audio.EncodeWAV([]int16{7}, 22050))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("jarvis.wav"), WithLanguage("de"))
	audioCh, _ := p.SynthesizeStream(context.Background(), tts.Text("Guten Tag"))
	if pcm := drainAudio(audioCh); len(pcm) != 2 {
		t.Errorf("pcm length = %d, want 2", len(pcm))
	}
	if got.Text != "Guten Tag" || got.SpeakerWav != "jarvis.wav" || got.Language != "de" {
		t.Errorf("request = %+v", got)
	}
}
