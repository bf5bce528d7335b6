// NativeProvider needs libwhisper.a and whisper.h from whisper.cpp at build
// time, found through LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs a whisper.cpp model in-process. The model is loaded once
// and each Transcribe call runs on its own inference context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint

	// One inference at a time; contexts hold large scratch buffers.
	mu sync.Mutex
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the spoken language ("en", "de", "auto"). Defaults
// to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeThreads caps the CPU threads used per inference. Zero keeps the
// library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative loads the ggml model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe resamples the utterance to 16 kHz and joins the decoded
// segments with single spaces.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	pcm := audio.ToFloat32(audio.Resample(samples, sampleRate, modelSampleRate))

	p.mu.Lock()
	defer p.mu.Unlock()

	wctx, err := p.newContext()
	if err != nil {
		return "", err
	}
	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	return joinSegments(wctx)
}

func (p *NativeProvider) newContext() (whisperlib.Context, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: language not supported by model, keeping default", "language", p.language, "err", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	return wctx, nil
}

func joinSegments(wctx whisperlib.Context) (string, error) {
	var parts []string
	for {
		seg, err := wctx.NextSegment()
		switch {
		case errors.Is(err, io.EOF):
			return strings.Join(parts, " "), nil
		case err != nil:
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
}
