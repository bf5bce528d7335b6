// Package mock provides a test double for the vad.Engine interface.
//
// Engine answers from a script of speech/silence decisions and records every
// frame it classified.
//
// Example:
//
//	eng := &mock.Engine{Script: []bool{true, true, false}}
//	speech, _ := eng.IsSpeech(frame, 16000, 1) // true
package mock

import (
	"sync"

	"github.com/MrWong99/echovault/pkg/provider/vad"
)

// IsSpeechCall records a single invocation of Engine.IsSpeech.
type IsSpeechCall struct {
	FrameLen       int
	SampleRate     int
	Aggressiveness int
}

// Engine is a mock implementation of vad.Engine.
//
// IsSpeech resolves its result in this order: Err, IsSpeechFunc, the next
// entry of Script, Default.
type Engine struct {
	mu sync.Mutex

	// Script holds one decision per call, consumed in order.
	Script []bool

	// Default is returned once Script is exhausted.
	Default bool

	// IsSpeechFunc, when set, computes the result for each call.
	IsSpeechFunc func(frame []byte, sampleRate, aggressiveness int) (bool, error)

	// Err, if non-nil, is returned by every call.
	Err error

	// Calls records every call to IsSpeech.
	Calls []IsSpeechCall
}

// IsSpeech implements vad.Engine.
func (e *Engine) IsSpeech(frame []byte, sampleRate, aggressiveness int) (bool, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, IsSpeechCall{FrameLen: len(frame), SampleRate: sampleRate, Aggressiveness: aggressiveness})
	if e.Err != nil {
		err := e.Err
		e.mu.Unlock()
		return false, err
	}
	if fn := e.IsSpeechFunc; fn != nil {
		e.mu.Unlock()
		return fn(frame, sampleRate, aggressiveness)
	}
	result := e.Default
	if len(e.Script) > 0 {
		result = e.Script[0]
		e.Script = e.Script[1:]
	}
	e.mu.Unlock()
	return result, nil
}

// CallCount returns the number of IsSpeech calls. Thread-safe.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = nil
}

var _ vad.Engine = (*Engine)(nil)
