package resilience

import (
	"context"

	"github.com/MrWong99/echovault/pkg/provider/stt"
)

// STTFallback tries a chain of speech-to-text backends in order.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns a chain whose first backend is primary.
func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup("stt", primary, name, cfg)}
}

// AddFallback appends a backend tried after the existing ones.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }

// Transcribe implements stt.Provider. Empty input is rejected before any
// backend is called, so it never counts against a breaker.
func (f *STTFallback) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", stt.ErrEmptyAudio
	}
	text, _, err := Execute(ctx, f.group, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, samples, sampleRate)
	})
	return text, err
}
