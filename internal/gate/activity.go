// Package gate turns a stream of microphone frames into something the turn
// controller can act on.
//
// Three capture styles share the package:
//
//   - [ActivityGate] segments one utterance using a VAD engine: it waits for
//     speech, keeps everything from the first speech frame on, and stops after
//     a run of trailing silence (or after waiting too long for speech at all).
//   - [WakeGate] scans frames for a wake phrase indefinitely and calls back
//     into the controller for every detection.
//   - [Recorder] captures everything until told to stop, for push-to-talk.
//
// ActivityGate and WakeGate run on the caller's goroutine; Recorder runs one
// producer goroutine per recording and always joins it. Every gate opens its
// input device only for the duration of one operation and closes it on every
// exit path, so at most one input stream is open at a time.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/vad"
)

// Source names used in [Detection] and metric attributes.
const (
	SourceActivity = "activity"
	SourceWake     = "wake"
	SourceManual   = "manual"
)

// Detection describes a classifier decision worth reporting: speech onset in
// the activity gate or a wake phrase in the wake gate. Detections are
// ephemeral; they are logged and handed to the detection hook, nothing more.
type Detection struct {
	Source string
	Label  string
	Score  float64
	Seq    uint64
	At     time.Time
}

// Option configures a gate.
type Option func(*options)

type options struct {
	onDetect func(Detection)
	metrics  *observe.Metrics
	grace    time.Duration
}

func buildOptions(opts []Option) options {
	o := options{grace: DefaultJoinGrace}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// WithDetectionHook registers fn to be called synchronously for every
// [Detection].
func WithDetectionHook(fn func(Detection)) Option {
	return func(o *options) { o.onDetect = fn }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func (o options) detect(d Detection) {
	slog.Debug("gate: detection", "source", d.Source, "label", d.Label, "score", d.Score, "seq", d.Seq)
	if o.onDetect != nil {
		o.onDetect(d)
	}
}

// ActivityParams are the per-capture settings of an [ActivityGate].
type ActivityParams struct {
	// Aggressiveness is passed through to the VAD engine (0-3).
	Aggressiveness int

	// SilenceTimeout is how much trailing silence ends an utterance once
	// speech has started.
	SilenceTimeout time.Duration

	// FrameDuration is the length of one classified frame: 10, 20 or 30 ms.
	FrameDuration time.Duration

	// MaxWait bounds how long to wait for speech to start. Zero waits forever.
	MaxWait time.Duration
}

// Validate checks p against the VAD frame constraints at sampleRate.
func (p ActivityParams) Validate(sampleRate int) error {
	var errs []error
	if p.FrameDuration <= 0 || p.FrameDuration%time.Millisecond != 0 {
		errs = append(errs, fmt.Errorf("frame duration %v must be a positive whole number of milliseconds", p.FrameDuration))
	} else if err := vad.ValidateFrameConfig(sampleRate, int(p.FrameDuration/time.Millisecond)); err != nil {
		errs = append(errs, err)
	}
	if p.Aggressiveness < vad.MinAggressiveness || p.Aggressiveness > vad.MaxAggressiveness {
		errs = append(errs, fmt.Errorf("aggressiveness %d out of range [%d, %d]", p.Aggressiveness, vad.MinAggressiveness, vad.MaxAggressiveness))
	}
	if p.SilenceTimeout < 0 {
		errs = append(errs, fmt.Errorf("silence timeout %v must not be negative", p.SilenceTimeout))
	}
	if p.MaxWait < 0 {
		errs = append(errs, fmt.Errorf("max wait %v must not be negative", p.MaxWait))
	}
	return errors.Join(errs...)
}

// FrameCount converts d into a number of whole frames of length frame,
// rounding down. 1 s of 30 ms frames is 33 frames.
func FrameCount(d, frame time.Duration) int {
	if frame <= 0 || d <= 0 {
		return 0
	}
	return int(d / frame)
}

// FrameSize returns the number of samples in one frame of length frame at
// sampleRate.
func FrameSize(sampleRate int, frame time.Duration) int {
	return int(int64(sampleRate) * int64(frame) / int64(time.Second))
}

// Segmenter is the start/continue/stop state machine of voice-activity
// capture, separated from any device so it can be driven frame by frame.
type Segmenter struct {
	silenceLimit int
	waitLimit    int

	started bool
	silent  int
	waiting int

	samples []int16
	frames  int
}

// NewSegmenter returns a Segmenter that stops after silenceLimit consecutive
// silent frames following speech, or after waitLimit silent frames before any
// speech. A waitLimit of zero disables the wait limit.
func NewSegmenter(silenceLimit, waitLimit int) *Segmenter {
	return &Segmenter{silenceLimit: silenceLimit, waitLimit: waitLimit}
}

// Push feeds one classified frame and reports whether capture is complete.
// Frames before the first speech frame are counted but never retained;
// trailing silence after speech is retained.
func (s *Segmenter) Push(frame []int16, speech bool) (done bool) {
	switch {
	case speech:
		s.started = true
		s.silent = 0
		s.appendFrame(frame)
	case s.started:
		s.appendFrame(frame)
		s.silent++
		return s.silent >= s.silenceLimit
	default:
		s.waiting++
		return s.waitLimit > 0 && s.waiting >= s.waitLimit
	}
	return false
}

func (s *Segmenter) appendFrame(frame []int16) {
	s.samples = append(s.samples, frame...)
	s.frames++
}

// Started reports whether a speech frame has been seen.
func (s *Segmenter) Started() bool { return s.started }

// Utterance returns everything retained so far.
func (s *Segmenter) Utterance(sampleRate int) audio.Utterance {
	if s.frames == 0 {
		return audio.Utterance{SampleRate: sampleRate}
	}
	return audio.Utterance{Samples: s.samples, SampleRate: sampleRate, Frames: s.frames}
}

// ActivityGate captures single utterances delimited by voice activity.
type ActivityGate struct {
	opener     audio.Opener
	engine     vad.Engine
	sampleRate int
	opts       options
}

// NewActivityGate returns a gate that opens input through opener at
// sampleRate and classifies frames with engine.
func NewActivityGate(opener audio.Opener, engine vad.Engine, sampleRate int, opts ...Option) *ActivityGate {
	return &ActivityGate{
		opener:     opener,
		engine:     engine,
		sampleRate: sampleRate,
		opts:       buildOptions(opts),
	}
}

// SampleRate returns the capture rate.
func (g *ActivityGate) SampleRate() int { return g.sampleRate }

// Capture opens the input device, segments one utterance and closes the
// device again.
//
// An empty utterance is a normal result: no speech before MaxWait elapsed, or
// the capture ended before speech started. Cancelling ctx or a device read
// failure ends the capture early and returns what was collected with a nil
// error. Errors are returned only for invalid params and a failure to open
// the device.
func (g *ActivityGate) Capture(ctx context.Context, p ActivityParams) (audio.Utterance, error) {
	if err := p.Validate(g.sampleRate); err != nil {
		return audio.Utterance{}, fmt.Errorf("gate: capture: %w", err)
	}
	frameSize := FrameSize(g.sampleRate, p.FrameDuration)

	src, err := g.opener.Open(ctx, audio.StreamConfig{SampleRate: g.sampleRate, FrameSize: frameSize})
	if err != nil {
		return audio.Utterance{}, fmt.Errorf("gate: open input: %w", err)
	}
	defer closeSource(src, SourceActivity)
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	start := time.Now()
	seg := NewSegmenter(FrameCount(p.SilenceTimeout, p.FrameDuration), FrameCount(p.MaxWait, p.FrameDuration))
	for ctx.Err() == nil {
		f, err := src.ReadFrame()
		if err != nil {
			if !errors.Is(err, audio.ErrClosed) && ctx.Err() == nil {
				slog.Warn("gate: input read failed, ending capture", "err", err)
			}
			break
		}
		if len(f.Samples) < frameSize {
			slog.Debug("gate: skipping short frame", "seq", f.Seq, "samples", len(f.Samples), "want", frameSize)
			continue
		}
		samples := f.Samples[:frameSize]

		speech, err := g.engine.IsSpeech(audio.SamplesToBytes(samples), g.sampleRate, p.Aggressiveness)
		if err != nil {
			slog.Debug("gate: vad failed, treating frame as silence", "seq", f.Seq, "err", err)
			speech = false
		}
		if speech && !seg.Started() {
			g.opts.detect(Detection{Source: SourceActivity, Label: "speech", Score: 1, Seq: f.Seq, At: time.Now()})
		}
		if seg.Push(samples, speech) {
			break
		}
	}

	utt := seg.Utterance(g.sampleRate)
	g.opts.metrics.CaptureDuration.Record(ctx, time.Since(start).Seconds(),
		metricAttrs(SourceActivity, utt.Empty()))
	return utt, nil
}

func closeSource(src audio.Source, source string) {
	if err := src.Close(); err != nil && !errors.Is(err, audio.ErrClosed) {
		slog.Warn("gate: failed to close input", "source", source, "err", err)
	}
}

func metricAttrs(source string, empty bool) metric.MeasurementOption {
	return metric.WithAttributes(observe.Attr("source", source), attribute.Bool("empty", empty))
}
