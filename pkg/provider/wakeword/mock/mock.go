// Package mock provides a test double for the wakeword.Detector interface.
//
// Detector returns scripted scores frame by frame and keeps an ordered log of
// ScoreFrame and Reset calls, so tests can assert that a reset happened
// between a trigger and the next evaluated frame.
//
// Example:
//
//	det := &mock.Detector{Script: []map[string]float64{nil, {"hey jarvis": 0.9}}}
//	det.ScoreFrame(ctx, frame) // nil
//	det.ScoreFrame(ctx, frame) // {"hey jarvis": 0.9}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echovault/pkg/provider/wakeword"
)

// Call kinds recorded in Detector.Log.
const (
	CallScore = "score"
	CallReset = "reset"
)

// Detector is a mock implementation of wakeword.Detector.
type Detector struct {
	mu sync.Mutex

	// Script holds the scores returned by successive ScoreFrame calls.
	Script []map[string]float64

	// ScoreFunc, when set and Script is exhausted, computes the result.
	ScoreFunc func(ctx context.Context, frame []int16) (map[string]float64, error)

	// ScoreErr, if non-nil, is returned by every ScoreFrame call.
	ScoreErr error

	log    []string
	resets int
}

// ScoreFrame implements wakeword.Detector.
func (d *Detector) ScoreFrame(ctx context.Context, frame []int16) (map[string]float64, error) {
	d.mu.Lock()
	d.log = append(d.log, CallScore)
	if d.ScoreErr != nil {
		err := d.ScoreErr
		d.mu.Unlock()
		return nil, err
	}
	if len(d.Script) > 0 {
		s := d.Script[0]
		d.Script = d.Script[1:]
		d.mu.Unlock()
		return s, nil
	}
	fn := d.ScoreFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, frame)
	}
	return nil, nil
}

// Reset implements wakeword.Detector.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, CallReset)
	d.resets++
}

// Log returns the ordered sequence of CallScore and CallReset entries.
func (d *Detector) Log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// ResetCount returns how many times Reset was called.
func (d *Detector) ResetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

var _ wakeword.Detector = (*Detector)(nil)
