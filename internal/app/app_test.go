package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/echovault/internal/config"
	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/internal/turn"
	"github.com/MrWong99/echovault/pkg/audio"
	audiomock "github.com/MrWong99/echovault/pkg/audio/mock"
	"github.com/MrWong99/echovault/pkg/provider/llm"
	llmmock "github.com/MrWong99/echovault/pkg/provider/llm/mock"
	"github.com/MrWong99/echovault/pkg/provider/stt"
	sttmock "github.com/MrWong99/echovault/pkg/provider/stt/mock"
	"github.com/MrWong99/echovault/pkg/provider/tts"
	ttsmock "github.com/MrWong99/echovault/pkg/provider/tts/mock"
	"github.com/MrWong99/echovault/pkg/provider/vad"
	vadmock "github.com/MrWong99/echovault/pkg/provider/vad/mock"
	"github.com/MrWong99/echovault/pkg/provider/wakeword"
	wakemock "github.com/MrWong99/echovault/pkg/provider/wakeword/mock"
)

// testDevice is an audio.Device built from the audio mocks.
type testDevice struct {
	*audiomock.Opener
	*audiomock.Sink
	closed atomic.Int32
}

func (d *testDevice) Close() error {
	d.closed.Add(1)
	return nil
}

type fixture struct {
	dev *testDevice
	stt *sttmock.Provider
	llm *llmmock.Provider
	tts *ttsmock.Provider
	reg *config.Registry
}

func newFixture() *fixture {
	f := &fixture{
		dev: &testDevice{Opener: &audiomock.Opener{}, Sink: &audiomock.Sink{}},
		stt: &sttmock.Provider{Text: "hello"},
		llm: &llmmock.Provider{Replies: []string{"hi there"}},
		tts: &ttsmock.Provider{Chunks: [][]byte{{0, 0, 1, 0}}, Rate: 16000},
		reg: config.NewRegistry(),
	}
	f.reg.RegisterAudio("mock", func(config.ProviderEntry) (audio.Device, error) { return f.dev, nil })
	f.reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) { return f.stt, nil })
	f.reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) { return f.llm, nil })
	f.reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) { return f.tts, nil })
	f.reg.RegisterVAD("mock", func(config.ProviderEntry) (vad.Engine, error) { return &vadmock.Engine{}, nil })
	f.reg.RegisterWakeword("mock", func(config.ProviderEntry) (wakeword.Detector, error) {
		return &wakemock.Detector{}, nil
	})
	return f
}

func testConfig() *config.Config {
	cfg := config.Default()
	mock := config.ProviderEntry{Name: "mock"}
	cfg.Providers = config.ProvidersConfig{
		STT: mock, LLM: mock, TTS: mock, VAD: mock, Wakeword: mock, Audio: mock,
	}
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestNew_PushToTalkTurn(t *testing.T) {
	t.Parallel()
	f := newFixture()
	frame := make([]int16, 480)
	for i := range frame {
		frame[i] = 1000
	}
	f.dev.Opener.Factory = func(audio.StreamConfig) *audiomock.Source {
		return audiomock.NewSource([][]int16{frame, frame, frame}, nil)
	}

	var out bytes.Buffer
	a, err := New(testConfig(),
		WithRegistry(f.reg),
		WithMetrics(testMetrics(t)),
		WithConsole(&out, false),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	cmds := make(chan turn.Command)
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), cmds) }()

	cmds <- turn.CommandToggle
	deadline := time.Now().Add(2 * time.Second)
	for {
		opened := f.dev.Opener.OpenedSources()
		if len(opened) == 1 && opened[0].Remaining() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recording never consumed the scripted frames")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cmds <- turn.CommandToggle
	cmds <- turn.CommandQuit

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after quit")
	}

	if got := f.stt.CallCount(); got != 1 {
		t.Errorf("stt calls = %d, want 1", got)
	}
	if calls := f.dev.Sink.Calls(); len(calls) != 1 || calls[0].SampleRate != 16000 {
		t.Errorf("playback calls = %+v, want one at 16000 Hz", calls)
	}
	text := out.String()
	for _, want := range []string{"You said: hello", "Jarvis: hi there"} {
		if !strings.Contains(text, want) {
			t.Errorf("console output missing %q:\n%s", want, text)
		}
	}
}

func TestNew_ResetAndQuit(t *testing.T) {
	t.Parallel()
	f := newFixture()
	var out bytes.Buffer
	a, err := New(testConfig(), WithRegistry(f.reg), WithMetrics(testMetrics(t)), WithConsole(&out, true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cmds := make(chan turn.Command, 2)
	cmds <- turn.CommandReset
	cmds <- turn.CommandQuit
	if err := a.Run(context.Background(), cmds); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Conversation reset.") {
		t.Errorf("console output missing reset notice:\n%s", out.String())
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = a.Close()
	if got := f.dev.closed.Load(); got != 1 {
		t.Errorf("device closed %d times, want 1", got)
	}
}

func TestNew_AlwaysListening(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a, err := New(testConfig(),
		WithRegistry(f.reg),
		WithMetrics(testMetrics(t)),
		WithModeOverride(turn.ModeAlwaysListening),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	info := a.info()
	if info["mode"] != string(turn.ModeAlwaysListening) || info["state"] != string(turn.StateIdle) {
		t.Errorf("info = %v", info)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown provider releases device", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		cfg := testConfig()
		cfg.Providers.LLM.Name = "nope"
		_, err := New(cfg, WithRegistry(f.reg), WithMetrics(testMetrics(t)))
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
		}
		if got := f.dev.closed.Load(); got != 1 {
			t.Errorf("device closed %d times, want 1", got)
		}
	})

	t.Run("invalid mode override", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		_, err := New(testConfig(), WithRegistry(f.reg), WithMetrics(testMetrics(t)), WithModeOverride("sometimes"))
		if err == nil || !strings.Contains(err.Error(), "conversation.mode") {
			t.Fatalf("err = %v, want conversation.mode error", err)
		}
		if n := f.dev.Opener.OpenCount(); n != 0 {
			t.Errorf("device opened %d times", n)
		}
	})

	t.Run("fallback failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		cfg := testConfig()
		cfg.Providers.TTS.Fallbacks = []config.ProviderEntry{{Name: "missing"}}
		_, err := New(cfg, WithRegistry(f.reg), WithMetrics(testMetrics(t)))
		if !errors.Is(err, config.ErrProviderNotRegistered) || !strings.Contains(err.Error(), `"missing"`) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestCreateChain_UniqueNames(t *testing.T) {
	t.Parallel()
	f := newFixture()
	cfg := testConfig()
	cfg.Providers.STT.Fallbacks = []config.ProviderEntry{{Name: "mock"}, {Name: "mock"}}
	a, err := New(cfg, WithRegistry(f.reg), WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	got := a.stt.Group().Names()
	want := []string{"mock", "mock-2", "mock-3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", got, want)
	}
}

func TestOnConfigChange(t *testing.T) {
	t.Parallel()
	f := newFixture()
	cfg := testConfig()
	a, err := New(cfg, WithRegistry(f.reg), WithMetrics(testMetrics(t)), WithModeOverride(turn.ModePushToTalk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	next := testConfig()
	next.Conversation.Mode = turn.ModeAlwaysListening
	next.Conversation.SystemPrompt = "Answer in one word."
	next.Conversation.MaxTokens = 42
	a.onConfigChange(cfg, next)

	if next.Conversation.Mode != turn.ModePushToTalk {
		t.Errorf("mode override lost on reload: %q", next.Conversation.Mode)
	}
	if _, err := a.responder.Respond(context.Background(), "hi"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	calls := f.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d", len(calls))
	}
	if req := calls[0].Req; req.SystemPrompt != "Answer in one word." || req.MaxTokens != 42 {
		t.Errorf("request = %+v, want reloaded settings", req)
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()
	opts := map[string]any{
		"s": "x", "i": 3, "f": 1.5, "d": "250ms", "bad": "soon",
	}
	if optString(opts, "s") != "x" || optString(opts, "i") != "" {
		t.Error("optString")
	}
	if optInt(opts, "i") != 3 || optInt(opts, "f") != 1 || optInt(opts, "missing") != 0 {
		t.Error("optInt")
	}
	if optFloat(opts, "f") != 1.5 || optFloat(opts, "i") != 3 {
		t.Error("optFloat")
	}
	if optDuration(opts, "d") != 250*time.Millisecond || optDuration(opts, "bad") != 0 {
		t.Error("optDuration")
	}
}
