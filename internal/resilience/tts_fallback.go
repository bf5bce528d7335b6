package resilience

import (
	"context"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// TTSFallback tries a chain of text-to-speech backends in order.
//
// Failover only covers stream start-up: once a backend has returned its
// audio channel, mid-stream errors close that channel early and are not
// retried, since the text fragments have already been consumed.
//
// The chain always reports the primary's sample rate. Audio from a fallback
// running at a different rate is resampled chunk by chunk.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a chain whose first backend is primary.
func NewTTSFallback(primary tts.Provider, name string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup("tts", primary, name, cfg)}
}

// AddFallback appends a backend tried after the existing ones.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }

// SampleRate implements tts.Provider.
func (f *TTSFallback) SampleRate() int { return f.group.Primary().SampleRate() }

// SynthesizeStream implements tts.Provider.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	ch, served, err := Execute(ctx, f.group, func(ctx context.Context, p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	if src, dst := served.SampleRate(), f.SampleRate(); src != dst {
		return resampleStream(ctx, ch, src, dst), nil
	}
	return ch, nil
}

// resampleStream converts every PCM chunk of in from src to dst Hz. in is
// drained to completion even after ctx is done so the producer never blocks.
func resampleStream(ctx context.Context, in <-chan []byte, src, dst int) <-chan []byte {
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		for chunk := range in {
			if ctx.Err() != nil {
				continue
			}
			pcm := audio.SamplesToBytes(audio.Resample(audio.BytesToSamples(chunk), src, dst))
			if len(pcm) == 0 {
				continue
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
			}
		}
	}()
	return out
}
