package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/wakeword"
)

// WakeParams are the settings of a [WakeGate] listen loop.
type WakeParams struct {
	// FrameDuration is the length of one scored frame.
	FrameDuration time.Duration

	// Threshold is the score a phrase must exceed. Zero selects
	// [wakeword.DefaultThreshold].
	Threshold float64
}

func (p WakeParams) threshold() float64 {
	if p.Threshold == 0 {
		return wakeword.DefaultThreshold
	}
	return p.Threshold
}

// TriggerFunc is called on the listen goroutine for every wake detection.
// The gate does not read frames until it returns.
type TriggerFunc func(ctx context.Context, phrase string)

// WakeGate scans the input for a wake phrase until stopped.
//
// The input device is released for the duration of each trigger callback and
// reopened afterwards, so the callback is free to capture from the same
// device.
type WakeGate struct {
	opener     audio.Opener
	detector   wakeword.Detector
	sampleRate int
	opts       options

	stopped atomic.Bool

	mu  sync.Mutex
	src audio.Source
}

// NewWakeGate returns a gate that opens input through opener at sampleRate
// and scores frames with detector.
func NewWakeGate(opener audio.Opener, detector wakeword.Detector, sampleRate int, opts ...Option) *WakeGate {
	return &WakeGate{
		opener:     opener,
		detector:   detector,
		sampleRate: sampleRate,
		opts:       buildOptions(opts),
	}
}

// Listen blocks, calling onTrigger for every detected wake phrase, until ctx
// is cancelled, [WakeGate.Stop] is called, or the device stops delivering
// frames. The detector is reset before onTrigger runs. Only a failure to open
// the device is returned as an error; the device is closed on every path.
func (g *WakeGate) Listen(ctx context.Context, p WakeParams, onTrigger TriggerFunc) error {
	if p.FrameDuration <= 0 {
		return fmt.Errorf("gate: listen: frame duration %v must be positive", p.FrameDuration)
	}
	if t := p.threshold(); t < 0 || t >= 1 {
		return fmt.Errorf("gate: listen: threshold %v out of range [0, 1)", t)
	}
	g.stopped.Store(false)
	cfg := audio.StreamConfig{SampleRate: g.sampleRate, FrameSize: FrameSize(g.sampleRate, p.FrameDuration)}

	for !g.done(ctx) {
		src, err := g.opener.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("gate: open input: %w", err)
		}
		phrase := g.scan(ctx, src, cfg.FrameSize, p.threshold())
		if phrase == "" {
			return nil
		}
		onTrigger(ctx, phrase)
	}
	return nil
}

// Stop asks a running Listen to return. It takes effect at the next frame
// boundary, or immediately if Listen is blocked reading from the device.
// Stop is safe to call from any goroutine, including a trigger callback.
func (g *WakeGate) Stop() {
	g.stopped.Store(true)
	g.mu.Lock()
	src := g.src
	g.mu.Unlock()
	if src != nil {
		_ = src.Close()
	}
}

func (g *WakeGate) done(ctx context.Context) bool {
	return ctx.Err() != nil || g.stopped.Load()
}

func (g *WakeGate) setSource(src audio.Source) {
	g.mu.Lock()
	g.src = src
	g.mu.Unlock()
}

// scan reads frames from src until a phrase triggers or the loop must end,
// closing src before it returns. It returns the triggered phrase, or "" when
// listening should stop.
func (g *WakeGate) scan(ctx context.Context, src audio.Source, frameSize int, threshold float64) string {
	g.setSource(src)
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer func() {
		stop()
		g.setSource(nil)
		closeSource(src, SourceWake)
	}()

	// Stop may have run before the source was published.
	for !g.done(ctx) {
		f, err := src.ReadFrame()
		if err != nil {
			if !errors.Is(err, audio.ErrClosed) && !g.done(ctx) {
				slog.Warn("gate: input read failed, leaving wake listen loop", "err", err)
			}
			return ""
		}
		if len(f.Samples) < frameSize {
			slog.Debug("gate: skipping short frame", "seq", f.Seq, "samples", len(f.Samples), "want", frameSize)
			continue
		}

		scores, err := g.detector.ScoreFrame(ctx, f.Samples[:frameSize])
		if err != nil {
			slog.Debug("gate: wake scoring failed", "seq", f.Seq, "err", err)
			continue
		}
		phrase := wakeword.Triggered(scores, threshold)
		if phrase == "" {
			continue
		}

		g.detector.Reset()
		slog.Info("gate: wake phrase detected", "phrase", phrase, "score", scores[phrase])
		g.opts.metrics.RecordWakeTrigger(ctx, phrase)
		g.opts.detect(Detection{Source: SourceWake, Label: phrase, Score: scores[phrase], Seq: f.Seq, At: time.Now()})
		return phrase
	}
	return ""
}
