package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	audiomock "github.com/MrWong99/echovault/pkg/audio/mock"
)

// waitDrained polls until src has handed out every queued frame.
func waitDrained(t *testing.T, src *audiomock.Source) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for src.Remaining() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("source was not drained")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRecorder_StopBeforeAnyFrame(t *testing.T) {
	src := audiomock.NewSource(nil, nil) // blocks until closed
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	r := NewRecorder(opener, testRate, testFrame, WithJoinGrace(10*time.Millisecond))

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	utt := rec.Stop()

	if !utt.Empty() || utt.Frames != 0 {
		t.Errorf("utterance = %d frames, want empty", utt.Frames)
	}
	if utt.SampleRate != testRate {
		t.Errorf("sample rate = %d, want %d", utt.SampleRate, testRate)
	}
	if !src.Closed() {
		t.Error("device left open")
	}
}

func TestRecorder_CollectsFrames(t *testing.T) {
	src := audiomock.NewSource(frames(3), nil)
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	r := NewRecorder(opener, testRate, testFrame, WithJoinGrace(10*time.Millisecond))

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDrained(t, src)
	utt := rec.Stop()

	if utt.Frames != 3 || len(utt.Samples) != 3*frameLen {
		t.Errorf("utterance = %d frames / %d samples, want 3 / %d", utt.Frames, len(utt.Samples), 3*frameLen)
	}
	if got := opener.OpenCalls[0].FrameSize; got != frameLen {
		t.Errorf("frame size = %d, want %d", got, frameLen)
	}
}

func TestRecorder_StopJoinsWithinGrace(t *testing.T) {
	src := audiomock.NewSource(nil, nil)
	src.Loop = frames(1)[0]
	src.Interval = 2 * time.Millisecond
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	r := NewRecorder(opener, testRate, testFrame) // default grace

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	utt := rec.Stop()
	if elapsed := time.Since(start); elapsed >= DefaultJoinGrace {
		t.Errorf("Stop took %v, want less than the join grace", elapsed)
	}
	if utt.Empty() {
		t.Error("recording of a live source is empty")
	}
	if !src.Closed() {
		t.Error("device left open")
	}
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	src := audiomock.NewSource(frames(2), errors.New("eof"))
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	r := NewRecorder(opener, testRate, testFrame, WithJoinGrace(10*time.Millisecond))

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	a := rec.Stop()
	b := rec.Stop()
	if a.Frames != 2 || b.Frames != 2 {
		t.Errorf("Stop results = %d and %d frames, want 2 and 2", a.Frames, b.Frames)
	}
}

func TestRecorder_CancelClosesDevice(t *testing.T) {
	src := audiomock.NewSource(nil, nil)
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	r := NewRecorder(opener, testRate, testFrame)

	ctx, cancel := context.WithCancel(context.Background())
	rec, err := r.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for !src.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("cancellation did not close the device")
		}
		time.Sleep(time.Millisecond)
	}
	start := time.Now()
	rec.Stop()
	if elapsed := time.Since(start); elapsed >= DefaultJoinGrace {
		t.Errorf("Stop after cancellation took %v", elapsed)
	}
}

func TestRecorder_OpenError(t *testing.T) {
	r := NewRecorder(&audiomock.Opener{OpenError: errors.New("busy")}, testRate, testFrame)
	if _, err := r.Start(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
}
