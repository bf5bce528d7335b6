// Package vad defines the Engine interface for Voice Activity Detection
// backends.
//
// An engine classifies one fixed-duration frame of raw 16-bit little-endian
// mono PCM as speech or silence. The segmentation logic built on top of it
// (speech onset, trailing silence, wait limits) lives in internal/gate, so
// engines stay free of per-stream state beyond what the model itself needs.
//
// Frame durations follow the WebRTC VAD constraints: 10, 20 or 30 ms at 8, 16,
// 32 or 48 kHz. Every backend enforces them so the gate behaves the same
// regardless of the engine selected.
package vad

import (
	"errors"
	"fmt"
	"slices"
)

// Aggressiveness bounds. 0 is the least aggressive at filtering non-speech,
// 3 the most.
const (
	MinAggressiveness = 0
	MaxAggressiveness = 3
)

// ErrInvalidFrame is returned when a frame does not hold exactly one supported
// frame duration of samples.
var ErrInvalidFrame = errors.New("vad: invalid frame")

// Engine is the abstraction over any VAD backend.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// IsSpeech reports whether frame contains speech. frame must hold exactly
	// 10, 20 or 30 ms of samples at sampleRate. aggressiveness ranges from
	// MinAggressiveness to MaxAggressiveness.
	IsSpeech(frame []byte, sampleRate, aggressiveness int) (bool, error)
}

var (
	supportedRates  = []int{8000, 16000, 32000, 48000}
	supportedFrames = []int{10, 20, 30}
)

// ValidateFrameConfig checks a sample rate and frame duration against the
// supported combinations.
func ValidateFrameConfig(sampleRate, frameMs int) error {
	if !slices.Contains(supportedRates, sampleRate) {
		return fmt.Errorf("vad: unsupported sample rate %d (want one of %v)", sampleRate, supportedRates)
	}
	if !slices.Contains(supportedFrames, frameMs) {
		return fmt.Errorf("vad: unsupported frame duration %d ms (want one of %v)", frameMs, supportedFrames)
	}
	return nil
}

// CheckFrame validates the arguments of an IsSpeech call.
func CheckFrame(frame []byte, sampleRate, aggressiveness int) error {
	if aggressiveness < MinAggressiveness || aggressiveness > MaxAggressiveness {
		return fmt.Errorf("vad: aggressiveness %d out of range [%d, %d]", aggressiveness, MinAggressiveness, MaxAggressiveness)
	}
	if !slices.Contains(supportedRates, sampleRate) {
		return fmt.Errorf("%w: unsupported sample rate %d", ErrInvalidFrame, sampleRate)
	}
	samples := len(frame) / 2
	for _, ms := range supportedFrames {
		if len(frame)%2 == 0 && samples == sampleRate*ms/1000 {
			return nil
		}
	}
	return fmt.Errorf("%w: %d bytes is not 10, 20 or 30 ms at %d Hz", ErrInvalidFrame, len(frame), sampleRate)
}
