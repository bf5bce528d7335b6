// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one captured utterance into text. Providers are batch
// engines: the caller hands over the complete utterance once capture has
// ended and receives a single transcript. Backends include a local
// whisper.cpp model loaded in-process, a whisper.cpp HTTP server, and the
// OpenAI transcription API.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by Transcribe when the utterance holds no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts mono 16-bit PCM captured at sampleRate into text.
	// Providers resample internally when their engine requires a different
	// rate. The returned text is trimmed; an empty string with a nil error
	// means the engine heard nothing intelligible.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)
}
