// Package wakeword defines the Detector interface for wake-phrase backends.
//
// A detector is fed one capture frame at a time and answers with a score per
// known phrase. Detectors are stateful across frames (rolling audio windows,
// model smoothing); Reset discards that state so a phrase that has just
// triggered cannot trigger again from residual audio.
package wakeword

import "context"

// DefaultThreshold is the score a phrase must exceed to trigger.
const DefaultThreshold = 0.5

// Detector is the abstraction over any wake-phrase backend.
//
// ScoreFrame and Reset are called from a single capture loop; implementations
// need not support concurrent ScoreFrame calls but must tolerate Reset racing
// with shutdown.
type Detector interface {
	// ScoreFrame consumes one frame and returns a score in [0, 1] for every
	// configured phrase. Frames that complete no evaluation may return a nil
	// or all-zero map.
	ScoreFrame(ctx context.Context, frame []int16) (map[string]float64, error)

	// Reset clears all accumulated state.
	Reset()
}

// Triggered returns the phrase with the highest score strictly above
// threshold, or "" if none qualifies.
func Triggered(scores map[string]float64, threshold float64) string {
	var (
		best      string
		bestScore float64
	)
	for phrase, s := range scores {
		if s > threshold && (best == "" || s > bestScore || (s == bestScore && phrase < best)) {
			best, bestScore = phrase, s
		}
	}
	return best
}
