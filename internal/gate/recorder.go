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
)

// DefaultJoinGrace is how long [Recording.Stop] waits for the capture
// goroutine to notice the stop flag before it closes the device.
const DefaultJoinGrace = time.Second

// WithJoinGrace overrides [DefaultJoinGrace] for a [Recorder].
func WithJoinGrace(d time.Duration) Option {
	return func(o *options) { o.grace = d }
}

// Recorder captures open-ended recordings for push-to-talk.
type Recorder struct {
	opener     audio.Opener
	sampleRate int
	frameSize  int
	opts       options
}

// NewRecorder returns a Recorder that reads frames of frameDuration at
// sampleRate through opener.
func NewRecorder(opener audio.Opener, sampleRate int, frameDuration time.Duration, opts ...Option) *Recorder {
	return &Recorder{
		opener:     opener,
		sampleRate: sampleRate,
		frameSize:  FrameSize(sampleRate, frameDuration),
		opts:       buildOptions(opts),
	}
}

// Recording is one capture in progress. Exactly one goroutine reads the
// device and owns the sample buffer; [Recording.Stop] joins it and hands the
// buffer over.
type Recording struct {
	src     audio.Source
	grace   time.Duration
	rate    int
	started time.Time
	opts    options

	stopFlag atomic.Bool
	result   chan audio.Utterance
	release  func() bool

	once sync.Once
	utt  audio.Utterance
}

// Start opens the device and begins capturing in the background. Cancelling
// ctx closes the device, which ends the capture; Stop must still be called
// to collect the samples.
func (r *Recorder) Start(ctx context.Context) (*Recording, error) {
	if r.frameSize <= 0 {
		return nil, fmt.Errorf("gate: record: frame size %d must be positive", r.frameSize)
	}
	src, err := r.opener.Open(ctx, audio.StreamConfig{SampleRate: r.sampleRate, FrameSize: r.frameSize})
	if err != nil {
		return nil, fmt.Errorf("gate: open input: %w", err)
	}
	rec := &Recording{
		src:     src,
		grace:   r.opts.grace,
		rate:    r.sampleRate,
		started: time.Now(),
		opts:    r.opts,
		result:  make(chan audio.Utterance, 1),
	}
	rec.release = context.AfterFunc(ctx, func() { _ = src.Close() })
	go rec.capture()
	return rec, nil
}

func (rec *Recording) capture() {
	var (
		buf    []int16
		frames int
	)
	defer func() {
		rec.result <- audio.Utterance{Samples: buf, SampleRate: rec.rate, Frames: frames}
	}()
	for !rec.stopFlag.Load() {
		f, err := rec.src.ReadFrame()
		if err != nil {
			if !errors.Is(err, audio.ErrClosed) && !rec.stopFlag.Load() {
				slog.Warn("gate: input read failed, ending recording", "err", err)
			}
			return
		}
		buf = append(buf, f.Samples...)
		frames++
	}
}

// Stop ends the recording and returns everything captured. The capture
// goroutine gets the join grace to finish its current read; after that the
// device is closed to unblock it. Stop is idempotent and always releases the
// device.
func (rec *Recording) Stop() audio.Utterance {
	rec.once.Do(func() {
		rec.stopFlag.Store(true)
		timer := time.NewTimer(rec.grace)
		defer timer.Stop()
		select {
		case rec.utt = <-rec.result:
		case <-timer.C:
			slog.Debug("gate: recording did not stop within grace, closing input", "grace", rec.grace)
			_ = rec.src.Close()
			rec.utt = <-rec.result
		}
		rec.release()
		closeSource(rec.src, SourceManual)

		if len(rec.utt.Samples) == 0 {
			rec.utt = audio.Utterance{SampleRate: rec.rate}
		}
		rec.opts.metrics.CaptureDuration.Record(context.Background(), time.Since(rec.started).Seconds(),
			metricAttrs(SourceManual, rec.utt.Empty()))
	})
	return rec.utt
}
