// Package energy provides a pure-Go VAD engine that classifies frames by RMS
// energy. It needs no native libraries, which makes it the fallback when the
// WebRTC engine is unavailable, and the engine used in tests.
package energy

import (
	"fmt"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/vad"
)

var _ vad.Engine = (*Engine)(nil)

// DefaultThresholds are the RMS levels, indexed by aggressiveness, at or above
// which a frame counts as speech.
var DefaultThresholds = [vad.MaxAggressiveness + 1]float64{200, 300, 450, 650}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the per-aggressiveness RMS thresholds.
func WithThresholds(t [vad.MaxAggressiveness + 1]float64) Option {
	return func(e *Engine) {
		e.thresholds = t
	}
}

// Engine is a stateless RMS threshold classifier.
type Engine struct {
	thresholds [vad.MaxAggressiveness + 1]float64
}

// New returns an Engine. Thresholds must be positive and non-decreasing.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{thresholds: DefaultThresholds}
	for _, o := range opts {
		o(e)
	}
	for i, t := range e.thresholds {
		if t <= 0 {
			return nil, fmt.Errorf("energy vad: threshold %d must be positive", i)
		}
		if i > 0 && t < e.thresholds[i-1] {
			return nil, fmt.Errorf("energy vad: thresholds must not decrease (index %d)", i)
		}
	}
	return e, nil
}

// IsSpeech implements vad.Engine.
func (e *Engine) IsSpeech(frame []byte, sampleRate, aggressiveness int) (bool, error) {
	if err := vad.CheckFrame(frame, sampleRate, aggressiveness); err != nil {
		return false, err
	}
	return audio.RMS(audio.BytesToSamples(frame)) >= e.thresholds[aggressiveness], nil
}
