// Package transcript provides a wake-phrase detector that runs a speech-to-text
// provider over a rolling window of recent audio and scores the result against
// the configured phrases phonetically.
//
// Evaluation happens once per hop, and only when the window is loud enough to
// plausibly contain speech, so a quiet room costs no transcription calls.
// Pair it with a local STT backend (whisper) to keep the wake loop offline.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/echovault/internal/phonetic"
	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
	"github.com/MrWong99/echovault/pkg/provider/wakeword"
)

var _ wakeword.Detector = (*Detector)(nil)

const (
	defaultWindow      = 1500 * time.Millisecond
	defaultHop         = 500 * time.Millisecond
	defaultEnergyFloor = 300
)

// Option configures a Detector.
type Option func(*Detector)

// WithWindow sets how much recent audio each evaluation transcribes.
func WithWindow(d time.Duration) Option {
	return func(det *Detector) {
		det.window = d
	}
}

// WithHop sets how much new audio must arrive between evaluations.
func WithHop(d time.Duration) Option {
	return func(det *Detector) {
		det.hop = d
	}
}

// WithEnergyFloor sets the RMS level below which a window is not transcribed.
func WithEnergyFloor(rms float64) Option {
	return func(det *Detector) {
		det.energyFloor = rms
	}
}

// WithMatcher overrides the phonetic matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(det *Detector) {
		det.matcher = m
	}
}

// Detector implements wakeword.Detector on top of an stt.Provider.
type Detector struct {
	stt         stt.Provider
	phrases     []string
	sampleRate  int
	window      time.Duration
	hop         time.Duration
	energyFloor float64
	matcher     *phonetic.Matcher

	mu      sync.Mutex
	buf     []int16 // most recent windowSamples samples
	pending int     // samples received since the last evaluation

	windowSamples int
	hopSamples    int
}

// New creates a Detector for phrases on audio captured at sampleRate.
func New(provider stt.Provider, phrases []string, sampleRate int, opts ...Option) (*Detector, error) {
	if provider == nil {
		return nil, errors.New("wakeword transcript: stt provider is required")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wakeword transcript: invalid sample rate %d", sampleRate)
	}
	var cleaned []string
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("wakeword transcript: at least one phrase is required")
	}

	d := &Detector{
		stt:         provider,
		phrases:     cleaned,
		sampleRate:  sampleRate,
		window:      defaultWindow,
		hop:         defaultHop,
		energyFloor: defaultEnergyFloor,
		matcher:     phonetic.New(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.hop <= 0 || d.window < d.hop {
		return nil, fmt.Errorf("wakeword transcript: hop %s must be positive and not exceed window %s", d.hop, d.window)
	}
	d.windowSamples = int(int64(sampleRate) * int64(d.window) / int64(time.Second))
	d.hopSamples = int(int64(sampleRate) * int64(d.hop) / int64(time.Second))
	return d, nil
}

// Phrases returns the configured phrases.
func (d *Detector) Phrases() []string {
	return append([]string(nil), d.phrases...)
}

// ScoreFrame implements wakeword.Detector. It returns nil for frames that
// do not complete a hop.
func (d *Detector) ScoreFrame(ctx context.Context, frame []int16) (map[string]float64, error) {
	d.mu.Lock()
	d.buf = append(d.buf, frame...)
	if over := len(d.buf) - d.windowSamples; over > 0 {
		d.buf = append(d.buf[:0], d.buf[over:]...)
	}
	d.pending += len(frame)
	if d.pending < d.hopSamples {
		d.mu.Unlock()
		return nil, nil
	}
	d.pending = 0
	window := append([]int16(nil), d.buf...)
	d.mu.Unlock()

	scores := make(map[string]float64, len(d.phrases))
	if audio.RMS(window) < d.energyFloor {
		for _, p := range d.phrases {
			scores[p] = 0
		}
		return scores, nil
	}

	text, err := d.stt.Transcribe(ctx, window, d.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("wakeword transcript: transcribe: %w", err)
	}
	for _, p := range d.phrases {
		scores[p] = d.matcher.Score(text, p)
	}
	if text != "" {
		slog.Debug("wake window transcribed", "text", text, "scores", scores)
	}
	return scores, nil
}

// Reset implements wakeword.Detector.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = d.buf[:0]
	d.pending = 0
}
