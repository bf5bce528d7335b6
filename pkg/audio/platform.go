// Package audio defines the device-facing types of EchoVault: frames read
// from a microphone, utterances assembled from them, and the interfaces
// implemented by audio backends.
//
// The three abstractions are:
//
//   - [Source]: an open input stream that yields one [Frame] per blocking read.
//   - [Opener]: opens a [Source] for a given [StreamConfig].
//   - [Sink]: plays a stream of PCM chunks and blocks until playback ends.
//
// Backends live in subpackages (audio/portaudio for real devices, audio/mock
// for tests). At most one [Source] is expected to be open at any time.
package audio

import (
	"context"
	"errors"
)

// ErrClosed is returned by [Source.ReadFrame] once the source has been closed.
var ErrClosed = errors.New("audio: source closed")

// StreamConfig describes the input stream a [Source] should deliver.
type StreamConfig struct {
	// SampleRate is the capture rate in Hz (e.g., 16000).
	SampleRate int

	// FrameSize is the number of samples per frame.
	FrameSize int
}

// Source is an open audio input stream.
//
// ReadFrame and Close may be called from different goroutines: Close must
// unblock a pending ReadFrame, which then returns [ErrClosed] or a device
// error.
type Source interface {
	// ReadFrame blocks until the next frame is available. A frame with fewer
	// samples than StreamConfig.FrameSize is a short read.
	ReadFrame() (Frame, error)

	// Close releases the device. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Opener opens input streams on an audio device.
type Opener interface {
	// Open starts a new input stream. ctx only bounds the open itself; the
	// returned Source lives until Close is called.
	Open(ctx context.Context, cfg StreamConfig) (Source, error)
}

// Sink plays synthesised speech.
type Sink interface {
	// PlayStream consumes 16-bit mono PCM chunks at sampleRate and blocks until
	// the channel is closed and everything has been played, or ctx is done.
	// The caller must close chunks; PlayStream drains it on every path.
	PlayStream(ctx context.Context, chunks <-chan []byte, sampleRate int) error
}

// Device combines input and output on the same backend.
type Device interface {
	Opener
	Sink

	// Close releases the backend.
	Close() error
}
