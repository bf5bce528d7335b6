package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
)

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.language != "en" {
		t.Errorf("language = %q, want en", p.language)
	}
}

func TestTranscribe_UploadsWAV(t *testing.T) {
	var (
		gotModel string
		gotLang  string
		gotRate  int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err == nil {
			data, _ := io.ReadAll(f)
			if info, _, err := audio.DecodeWAV(data); err == nil {
				gotRate = info.SampleRate
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Turn on the lights. "}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithModel("gpt-4o-transcribe"), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), make([]int16, 4800), 48000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Turn on the lights." {
		t.Errorf("text = %q", text)
	}
	if gotModel != "gpt-4o-transcribe" {
		t.Errorf("model = %q", gotModel)
	}
	if gotLang != "de" {
		t.Errorf("language = %q", gotLang)
	}
	if gotRate != uploadSampleRate {
		t.Errorf("uploaded rate = %d, want %d", gotRate, uploadSampleRate)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("sk-test")
	if _, err := p.Transcribe(context.Background(), nil, 16000); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}
