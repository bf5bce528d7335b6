// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Piper or Coqui
// server, OpenAI, ElevenLabs) and presents a uniform streaming interface.
// SynthesizeStream accepts a channel of text fragments and returns a channel of
// raw 16-bit little-endian mono PCM as it becomes available, so playback can
// start before the whole reply is synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from text and returns a channel
	// that emits raw PCM byte slices at SampleRate() as they are synthesised.
	//
	// The returned channel is closed when all text has been synthesised or when
	// ctx is cancelled. The caller must drain it to avoid blocking the
	// provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis close the audio channel early.
	SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error)

	// SampleRate reports the rate of the PCM emitted by SynthesizeStream.
	SampleRate() int
}

// Text returns a closed channel carrying s as its only fragment. It adapts a
// complete reply to the streaming SynthesizeStream signature.
func Text(s string) <-chan string {
	ch := make(chan string, 1)
	ch <- s
	close(ch)
	return ch
}
