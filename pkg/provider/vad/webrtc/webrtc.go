// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad, cgo).
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/echovault/pkg/provider/vad"
)

var _ vad.Engine = (*Engine)(nil)

// Engine wraps a single WebRTC VAD instance. The native detector keeps
// smoothing state between frames and is not reentrant, so calls are
// serialised.
type Engine struct {
	mu   sync.Mutex
	vad  *webrtcvad.VAD
	mode int
}

// New allocates a WebRTC VAD instance in mode 0.
func New() (*Engine, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: %w", err)
	}
	if err := v.SetMode(0); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode: %w", err)
	}
	return &Engine{vad: v}, nil
}

// IsSpeech implements vad.Engine.
func (e *Engine) IsSpeech(frame []byte, sampleRate, aggressiveness int) (bool, error) {
	if err := vad.CheckFrame(frame, sampleRate, aggressiveness); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if aggressiveness != e.mode {
		if err := e.vad.SetMode(aggressiveness); err != nil {
			return false, fmt.Errorf("webrtc vad: set mode %d: %w", aggressiveness, err)
		}
		e.mode = aggressiveness
	}
	active, err := e.vad.Process(sampleRate, frame)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return active, nil
}
