// Package mock provides scripted, in-memory implementations of [audio.Source],
// [audio.Opener], and [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// that the test can set to control behaviour.
//
// Typical usage:
//
//	src := mock.NewSource([][]int16{loud, loud, quiet}, nil)
//	opener := &mock.Opener{Sources: []*mock.Source{src}}
//	g := gate.NewActivityGate(opener, engine, 16000)
//	utt, err := g.Capture(ctx, params)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/echovault/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a scripted [audio.Source]. It yields the queued frames in order.
// Once the queue is empty it repeats Loop (if set), otherwise returns ReadErr
// (if set), otherwise blocks until Close is called.
type Source struct {
	mu     sync.Mutex
	frames [][]int16
	seq    uint64

	closeOnce sync.Once
	closed    chan struct{}

	// Loop, when non-nil, is returned on every read after the queue drains.
	Loop []int16

	// Interval delays each read, emulating a real-time device clock.
	Interval time.Duration

	// ReadErr is returned once the queue is empty and Loop is nil.
	ReadErr error

	// CloseError is returned by the first Close call.
	CloseError error

	// CallCountRead records how many times ReadFrame was called.
	CallCountRead int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewSource returns a Source that yields frames and then readErr. A nil
// readErr makes the source block after the last frame until closed.
func NewSource(frames [][]int16, readErr error) *Source {
	return &Source{
		frames:  frames,
		ReadErr: readErr,
		closed:  make(chan struct{}),
	}
}

func (s *Source) closedCh() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
	return s.closed
}

// ReadFrame implements [audio.Source].
func (s *Source) ReadFrame() (audio.Frame, error) {
	closed := s.closedCh()

	s.mu.Lock()
	s.CallCountRead++
	interval := s.Interval
	s.mu.Unlock()

	if interval > 0 {
		select {
		case <-closed:
			return audio.Frame{}, audio.ErrClosed
		case <-time.After(interval):
		}
	}

	s.mu.Lock()
	select {
	case <-closed:
		s.mu.Unlock()
		return audio.Frame{}, audio.ErrClosed
	default:
	}
	if len(s.frames) > 0 {
		f := audio.Frame{Samples: s.frames[0], Seq: s.seq}
		s.frames = s.frames[1:]
		s.seq++
		s.mu.Unlock()
		return f, nil
	}
	if s.Loop != nil {
		f := audio.Frame{Samples: append([]int16(nil), s.Loop...), Seq: s.seq}
		s.seq++
		s.mu.Unlock()
		return f, nil
	}
	if err := s.ReadErr; err != nil {
		s.mu.Unlock()
		return audio.Frame{}, err
	}
	s.mu.Unlock()

	<-closed
	return audio.Frame{}, audio.ErrClosed
}

// Close implements [audio.Source]. Only the first call returns CloseError.
func (s *Source) Close() error {
	closed := s.closedCh()

	s.mu.Lock()
	s.CallCountClose++
	s.mu.Unlock()

	var err error
	s.closeOnce.Do(func() {
		close(closed)
		s.mu.Lock()
		err = s.CloseError
		s.mu.Unlock()
	})
	return err
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	select {
	case <-s.closedCh():
		return true
	default:
		return false
	}
}

// Remaining returns the number of queued frames not yet read.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// ─── Opener ───────────────────────────────────────────────────────────────────

// Opener is a mock implementation of [audio.Opener]. Each Open hands out the
// next entry of Sources; once those are used up it calls Factory, and failing
// that returns a Source that blocks until closed.
type Opener struct {
	mu sync.Mutex

	// Sources are handed out in order, one per successful Open.
	Sources []*Source

	// Factory builds a Source when Sources is exhausted.
	Factory func(cfg audio.StreamConfig) *Source

	// OpenError is returned by every Open call when set.
	OpenError error

	// OpenCalls records the StreamConfig of every Open call.
	OpenCalls []audio.StreamConfig

	// Opened records every Source returned, in order.
	Opened []*Source
}

// Open implements [audio.Opener].
func (o *Opener) Open(_ context.Context, cfg audio.StreamConfig) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCalls = append(o.OpenCalls, cfg)
	if o.OpenError != nil {
		return nil, o.OpenError
	}

	var src *Source
	switch {
	case len(o.Sources) > 0:
		src = o.Sources[0]
		o.Sources = o.Sources[1:]
	case o.Factory != nil:
		src = o.Factory(cfg)
	default:
		src = NewSource(nil, nil)
	}
	o.Opened = append(o.Opened, src)
	return src, nil
}

// OpenCount returns how many times Open succeeded.
func (o *Opener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Opened)
}

// OpenedSources returns a copy of the sources handed out so far.
func (o *Opener) OpenedSources() []*Source {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Source(nil), o.Opened...)
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records a single [Sink.PlayStream] invocation.
type PlayCall struct {
	// SampleRate is the rate argument passed to PlayStream.
	SampleRate int

	// Chunks holds every chunk received, in order.
	Chunks [][]byte
}

// Sink is a mock implementation of [audio.Sink] that collects played chunks.
type Sink struct {
	mu sync.Mutex

	// PlayError is returned by PlayStream after the channel has been drained.
	PlayError error

	// PlayCalls records all PlayStream invocations.
	PlayCalls []PlayCall
}

// PlayStream implements [audio.Sink]. It drains chunks until closed or ctx is
// done, recording everything it receives.
func (s *Sink) PlayStream(ctx context.Context, chunks <-chan []byte, sampleRate int) error {
	call := PlayCall{SampleRate: sampleRate}
	defer func() {
		s.mu.Lock()
		s.PlayCalls = append(s.PlayCalls, call)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			go audio.Drain(chunks)
			return ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				s.mu.Lock()
				err := s.PlayError
				s.mu.Unlock()
				return err
			}
			call.Chunks = append(call.Chunks, c)
		}
	}
}

// Calls returns a copy of the recorded PlayStream invocations.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlayCall(nil), s.PlayCalls...)
}

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Opener = (*Opener)(nil)
	_ audio.Sink   = (*Sink)(nil)
)
