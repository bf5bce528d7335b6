package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/echovault/pkg/provider/stt"
	"github.com/MrWong99/echovault/pkg/provider/stt/whisper"
)

// nativeModel returns $WHISPER_MODEL_PATH or skips the test.
func nativeModel(t *testing.T) string {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	return path
}

func TestNewNative_Errors(t *testing.T) {
	for name, path := range map[string]string{
		"empty path":   "",
		"missing file": "/nonexistent/ggml-base.en.bin",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := whisper.NewNative(path); err == nil {
				t.Fatalf("NewNative(%q) succeeded", path)
			}
		})
	}
}

func TestNativeTranscribe_EmptyAudio(t *testing.T) {
	p, err := whisper.NewNative(nativeModel(t), whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	_, err = p.Transcribe(context.Background(), nil, 16000)
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestNativeTranscribe_SilenceYieldsNoError(t *testing.T) {
	p, err := whisper.NewNative(nativeModel(t), whisper.WithNativeThreads(2))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	// One second of silence at 48 kHz exercises the resample path.
	if _, err := p.Transcribe(context.Background(), make([]int16, 48000), 48000); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}
