// Package portaudio provides an [audio.Device] backed by the local sound card
// through the gordonklaus/portaudio bindings.
//
// Input streams use PortAudio's blocking read API: every [audio.Source]
// returned by [Device.Open] owns a dedicated mono int16 stream whose buffer
// is exactly one frame long. Playback opens a short-lived output stream per
// [Device.PlayStream] call.
//
// The PortAudio library is initialised by [New] and terminated by
// [Device.Close]; a process should hold at most one Device.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/echovault/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

const defaultPlaybackBlock = 1024

// Option is a functional option for configuring a [Device].
type Option func(*Device)

// WithInputDevice selects the capture device whose name contains name
// (case-insensitive). An empty name means the system default.
func WithInputDevice(name string) Option {
	return func(d *Device) { d.inputName = name }
}

// WithOutputDevice selects the playback device whose name contains name
// (case-insensitive). An empty name means the system default.
func WithOutputDevice(name string) Option {
	return func(d *Device) { d.outputName = name }
}

// WithPlaybackBlock sets the number of samples written per playback call.
func WithPlaybackBlock(samples int) Option {
	return func(d *Device) {
		if samples > 0 {
			d.block = samples
		}
	}
}

// Device implements [audio.Device] on top of PortAudio.
type Device struct {
	inputName  string
	outputName string
	block      int

	closeOnce sync.Once
	closeErr  error
}

// New initialises PortAudio and returns a Device.
func New(opts ...Option) (*Device, error) {
	d := &Device{block: defaultPlaybackBlock}
	for _, o := range opts {
		o(d)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	return d, nil
}

// Close terminates PortAudio. Streams still open become unusable.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		if err := pa.Terminate(); err != nil {
			d.closeErr = fmt.Errorf("portaudio: terminate: %w", err)
		}
	})
	return d.closeErr
}

// Open implements [audio.Opener]. It opens and starts a mono input stream
// whose reads deliver cfg.FrameSize samples.
func (d *Device) Open(_ context.Context, cfg audio.StreamConfig) (audio.Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid stream config %+v", cfg)
	}
	dev, err := findDevice(d.inputName, true)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, cfg.FrameSize)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start input %q: %w", dev.Name, err)
	}
	slog.Debug("portaudio: input stream opened", "device", dev.Name, "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return &inputStream{stream: stream, buf: buf}, nil
}

// PlayStream implements [audio.Sink]. It opens an output stream at
// sampleRate and writes chunks in fixed blocks, zero-padding the tail.
func (d *Device) PlayStream(ctx context.Context, chunks <-chan []byte, sampleRate int) error {
	defer audio.Drain(chunks)

	dev, err := findDevice(d.outputName, false)
	if err != nil {
		return err
	}
	buf := make([]int16, d.block)
	params := pa.StreamParameters{
		Output: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: d.block,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output %q: %w", dev.Name, err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output %q: %w", dev.Name, err)
	}

	// pending holds decoded samples not yet written.
	var pending []int16
	flush := func(final bool) error {
		for len(pending) >= len(buf) || (final && len(pending) > 0) {
			n := copy(buf, pending)
			clear(buf[n:])
			pending = pending[n:]
			if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
				return fmt.Errorf("portaudio: write: %w", err)
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = stream.Abort()
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				if err := flush(true); err != nil {
					return err
				}
				return stream.Stop()
			}
			pending = append(pending, audio.BytesToSamples(chunk)...)
			if err := flush(false); err != nil {
				return err
			}
		}
	}
}

// findDevice returns the first device matching name, or the system default
// when name is empty.
func findDevice(name string, input bool) (*pa.DeviceInfo, error) {
	if name == "" {
		var (
			dev *pa.DeviceInfo
			err error
		)
		if input {
			dev, err = pa.DefaultInputDevice()
		} else {
			dev, err = pa.DefaultOutputDevice()
		}
		if err != nil {
			return nil, fmt.Errorf("portaudio: default device: %w", err)
		}
		return dev, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, dev := range devices {
		if input && dev.MaxInputChannels < 1 {
			continue
		}
		if !input && dev.MaxOutputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), want) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no device matching %q", name)
}

// ─── inputStream ──────────────────────────────────────────────────────────────

// inputStream is a started blocking-read PortAudio stream.
type inputStream struct {
	stream *pa.Stream
	buf    []int16
	seq    uint64

	readMu    sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// ReadFrame implements [audio.Source]. Input overflows are not fatal; the
// frame is delivered as read.
func (s *inputStream) ReadFrame() (audio.Frame, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.closed.Load() {
		return audio.Frame{}, audio.ErrClosed
	}

	if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		if s.closed.Load() {
			return audio.Frame{}, audio.ErrClosed
		}
		return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
	}
	f := audio.Frame{Samples: append([]int16(nil), s.buf...), Seq: s.seq}
	s.seq++
	return f, nil
}

// Close implements [audio.Source]. Aborting the stream unblocks a pending
// read; the stream itself is released once that read has returned.
func (s *inputStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.stream.Abort()
		s.readMu.Lock()
		defer s.readMu.Unlock()
		if err := s.stream.Close(); err != nil {
			s.closeErr = fmt.Errorf("portaudio: close input: %w", err)
		}
	})
	return s.closeErr
}
