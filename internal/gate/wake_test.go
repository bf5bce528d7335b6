package gate

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/echovault/internal/observe"
	audiomock "github.com/MrWong99/echovault/pkg/audio/mock"
	wakemock "github.com/MrWong99/echovault/pkg/provider/wakeword/mock"
)

var wakeParams = WakeParams{FrameDuration: testFrame}

func hit(score float64) map[string]float64 {
	return map[string]float64{"hey jarvis": score, "computer": 0.1}
}

func TestListen_ResetsBeforeNextFrame(t *testing.T) {
	first := audiomock.NewSource(frames(2), nil)
	second := audiomock.NewSource(frames(1), nil)
	opener := &audiomock.Opener{Sources: []*audiomock.Source{first, second}}
	det := &wakemock.Detector{Script: []map[string]float64{nil, hit(0.9), hit(0.8)}}
	g := NewWakeGate(opener, det, testRate)

	var phrases []string
	err := g.Listen(context.Background(), wakeParams, func(_ context.Context, phrase string) {
		phrases = append(phrases, phrase)
		if len(phrases) == 1 {
			if !first.Closed() {
				t.Error("device still open during trigger callback")
			}
			if got := det.Log(); !slices.Equal(got, []string{wakemock.CallScore, wakemock.CallScore, wakemock.CallReset}) {
				t.Errorf("log at first trigger = %v", got)
			}
			return
		}
		g.Stop()
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if !slices.Equal(phrases, []string{"hey jarvis", "hey jarvis"}) {
		t.Errorf("phrases = %v", phrases)
	}
	want := []string{
		wakemock.CallScore, wakemock.CallScore, wakemock.CallReset,
		wakemock.CallScore, wakemock.CallReset,
	}
	if got := det.Log(); !slices.Equal(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}
	if opener.OpenCount() != 2 {
		t.Errorf("opened %d times, want 2", opener.OpenCount())
	}
	if !second.Closed() {
		t.Error("device left open after Stop")
	}
}

func TestListen_ThresholdIsStrict(t *testing.T) {
	src := audiomock.NewSource(frames(2), errors.New("eof"))
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	det := &wakemock.Detector{Script: []map[string]float64{hit(0.5), hit(0.49)}}
	g := NewWakeGate(opener, det, testRate)

	called := false
	if err := g.Listen(context.Background(), wakeParams, func(context.Context, string) { called = true }); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if called {
		t.Error("score equal to threshold triggered")
	}
	if det.ResetCount() != 0 {
		t.Errorf("resets = %d, want 0", det.ResetCount())
	}
}

func TestListen_CustomThreshold(t *testing.T) {
	src := audiomock.NewSource(frames(1), errors.New("eof"))
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	det := &wakemock.Detector{Script: []map[string]float64{hit(0.3)}}
	g := NewWakeGate(opener, det, testRate)

	var got string
	err := g.Listen(context.Background(), WakeParams{FrameDuration: testFrame, Threshold: 0.2},
		func(_ context.Context, phrase string) { got = phrase })
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got != "hey jarvis" {
		t.Errorf("phrase = %q, want hey jarvis", got)
	}
}

func TestListen_StopsOnCancel(t *testing.T) {
	src := audiomock.NewSource(nil, nil)
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	g := NewWakeGate(opener, &wakemock.Detector{}, testRate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.Listen(ctx, wakeParams, func(context.Context, string) { t.Error("unexpected trigger") }); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if !src.Closed() {
		t.Error("device left open after cancellation")
	}
}

func TestListen_StopFromOtherGoroutine(t *testing.T) {
	src := audiomock.NewSource(nil, nil)
	src.Loop = frames(1)[0]
	src.Interval = time.Millisecond
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	g := NewWakeGate(opener, &wakemock.Detector{}, testRate)

	done := make(chan error, 1)
	go func() {
		done <- g.Listen(context.Background(), wakeParams, func(context.Context, string) {})
	}()
	time.Sleep(10 * time.Millisecond)
	g.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Listen: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after Stop")
	}
	if !src.Closed() {
		t.Error("device left open after Stop")
	}
}

func TestListen_ScoreErrorIsSkipped(t *testing.T) {
	src := audiomock.NewSource(frames(3), errors.New("eof"))
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	det := &wakemock.Detector{ScoreErr: errors.New("model failed")}
	g := NewWakeGate(opener, det, testRate)

	if err := g.Listen(context.Background(), wakeParams, func(context.Context, string) {}); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if n := len(det.Log()); n != 3 {
		t.Errorf("scored %d frames, want 3", n)
	}
}

func TestListen_OpenError(t *testing.T) {
	opener := &audiomock.Opener{OpenError: errors.New("busy")}
	g := NewWakeGate(opener, &wakemock.Detector{}, testRate)
	if err := g.Listen(context.Background(), wakeParams, func(context.Context, string) {}); err == nil {
		t.Fatal("expected open error")
	}
}

func TestListen_InvalidParams(t *testing.T) {
	g := NewWakeGate(&audiomock.Opener{}, &wakemock.Detector{}, testRate)
	for _, p := range []WakeParams{{}, {FrameDuration: testFrame, Threshold: 1}, {FrameDuration: testFrame, Threshold: -0.1}} {
		if err := g.Listen(context.Background(), p, func(context.Context, string) {}); err == nil {
			t.Errorf("Listen(%+v) succeeded, want error", p)
		}
	}
}

func TestListen_RecordsDetection(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	src := audiomock.NewSource(frames(1), errors.New("eof"))
	opener := &audiomock.Opener{Sources: []*audiomock.Source{src}}
	det := &wakemock.Detector{Script: []map[string]float64{hit(0.95)}}

	var detections []Detection
	g := NewWakeGate(opener, det, testRate, WithMetrics(m),
		WithDetectionHook(func(d Detection) { detections = append(detections, d) }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := g.Listen(ctx, wakeParams, func(context.Context, string) { cancel() }); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if len(detections) != 1 || detections[0].Source != SourceWake || detections[0].Score != 0.95 {
		t.Errorf("detections = %+v", detections)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "echovault.wake.triggers" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 1 {
		t.Errorf("wake triggers = %d, want 1", total)
	}
}
