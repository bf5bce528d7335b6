// Package app wires all EchoVault subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects every
// provider, gate and the turn controller; Run drives the controller together
// with the optional event feed server and config hot reload; Close releases
// the devices and backends in reverse creation order.
//
// For testing, pass a registry whose factories return mocks via
// [WithRegistry]. Without one, New uses the built-in providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/echovault/internal/config"
	"github.com/MrWong99/echovault/internal/console"
	"github.com/MrWong99/echovault/internal/conversation"
	"github.com/MrWong99/echovault/internal/gate"
	"github.com/MrWong99/echovault/internal/health"
	"github.com/MrWong99/echovault/internal/notify"
	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/internal/resilience"
	"github.com/MrWong99/echovault/internal/server"
	"github.com/MrWong99/echovault/internal/turn"
	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
	"github.com/MrWong99/echovault/pkg/provider/wakeword"
	"github.com/MrWong99/echovault/pkg/provider/wakeword/transcript"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg            *config.Config
	reg            *config.Registry
	metrics        *observe.Metrics
	modeOverride   turn.Mode
	configPath     string
	ui             bool
	consoleOut     io.Writer
	prompt         bool
	metricsHandler http.Handler

	events     *notify.Channel
	device     audio.Device
	stt        *resilience.STTFallback
	llm        *resilience.LLMFallback
	tts        *resilience.TTSFallback
	responder  *conversation.Responder
	controller *turn.Controller
	health     *health.Handler
	server     *server.Server

	// closers run in reverse order during Close.
	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// Option is a functional option for New.
type Option func(*App)

// WithRegistry replaces the built-in provider registry.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.reg = reg }
}

// WithMetrics overrides the instrument set. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithModeOverride replaces conversation.mode from the file. The override
// also survives config reloads.
func WithModeOverride(m turn.Mode) Option {
	return func(a *App) { a.modeOverride = m }
}

// WithConfigPath enables hot reload of the file at path while Run is active.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithUI serves the event feed, probes and metrics on server.listen_addr.
func WithUI(enabled bool) Option {
	return func(a *App) { a.ui = enabled }
}

// WithConsole echoes every event to w. With prompt set, the push-to-talk
// prompt is printed whenever the controller returns to idle.
func WithConsole(w io.Writer, prompt bool) Option {
	return func(a *App) { a.consoleOut, a.prompt = w, prompt }
}

// WithMetricsHandler replaces the handler mounted at /metrics. Defaults to
// promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New builds every subsystem named by cfg. On error everything created so
// far is released.
func New(cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg, events: notify.New()}
	for _, o := range opts {
		o(a)
	}
	if a.reg == nil {
		a.reg = config.NewRegistry()
		RegisterBuiltinProviders(a.reg)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.modeOverride != "" {
		cfg.Conversation.Mode = a.modeOverride
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := a.initController(); err != nil {
		return nil, fmt.Errorf("app: init controller: %w", err)
	}
	a.initObservers()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initProviders creates the audio device and the stt, llm and tts chains.
func (a *App) initProviders() error {
	p := a.cfg.Providers

	dev, err := a.reg.CreateAudio(p.Audio)
	if err != nil {
		return fmt.Errorf("create audio device %q: %w", p.Audio.Name, err)
	}
	a.device = dev
	a.closers = append(a.closers, dev.Close)
	slog.Info("provider created", "kind", "audio", "name", p.Audio.Name)

	fcfg := resilience.FallbackConfig{Metrics: a.metrics}

	sttChain, err := createChain(a, "stt", p.STT, a.reg.CreateSTT)
	if err != nil {
		return err
	}
	a.stt = resilience.NewSTTFallback(sttChain[0].p, sttChain[0].name, fcfg)
	for _, c := range sttChain[1:] {
		a.stt.AddFallback(c.name, c.p)
	}

	llmChain, err := createChain(a, "llm", p.LLM, a.reg.CreateLLM)
	if err != nil {
		return err
	}
	a.llm = resilience.NewLLMFallback(llmChain[0].p, llmChain[0].name, fcfg)
	for _, c := range llmChain[1:] {
		a.llm.AddFallback(c.name, c.p)
	}

	ttsChain, err := createChain(a, "tts", p.TTS, a.reg.CreateTTS)
	if err != nil {
		return err
	}
	a.tts = resilience.NewTTSFallback(ttsChain[0].p, ttsChain[0].name, fcfg)
	for _, c := range ttsChain[1:] {
		a.tts.AddFallback(c.name, c.p)
	}
	return nil
}

type named[P any] struct {
	name string
	p    P
}

// createChain creates the provider of e followed by its fallbacks. Repeated
// backend names get a numeric suffix so every chain entry has its own
// breaker. Every created provider that is an [io.Closer] is released by
// Close, including those created before a failure.
func createChain[P any](a *App, kind string, e config.ProviderEntry, create func(config.ProviderEntry) (P, error)) ([]named[P], error) {
	entries := append([]config.ProviderEntry{e}, e.Fallbacks...)
	chain := make([]named[P], 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, entry := range entries {
		p, err := create(entry)
		if err != nil {
			return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
		}
		if c, ok := any(p).(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		seen[entry.Name]++
		name := entry.Name
		if n := seen[entry.Name]; n > 1 {
			name = entry.Name + "-" + strconv.Itoa(n)
		}
		chain = append(chain, named[P]{name: name, p: p})
		slog.Info("provider created", "kind", kind, "name", name, "fallback", i > 0)
	}
	return chain, nil
}

// initController builds the responder, the gates the mode needs, and the
// turn controller.
func (a *App) initController() error {
	cfg := a.cfg
	a.responder = conversation.New(a.llm, conversationOptions(cfg.Conversation, a.metrics)...)

	deps := turn.Deps{
		STT:       a.stt,
		Responder: a.responder,
		TTS:       a.tts,
		Sink:      a.device,
		Notify:    a.events,
	}
	gateOpts := []gate.Option{gate.WithMetrics(a.metrics)}

	switch cfg.Conversation.Mode {
	case turn.ModePushToTalk:
		deps.Recorder = gate.NewRecorder(a.device, cfg.Audio.SampleRate, cfg.VAD.FrameDuration, gateOpts...)
	case turn.ModeAlwaysListening:
		engine, err := a.reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			return fmt.Errorf("create vad engine %q: %w", cfg.Providers.VAD.Name, err)
		}
		slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)
		deps.Activity = gate.NewActivityGate(a.device, engine, cfg.Audio.SampleRate, gateOpts...)

		a.registerTranscriptWakeword(a.stt)
		detector, err := a.reg.CreateWakeword(cfg.Providers.Wakeword)
		if err != nil {
			return fmt.Errorf("create wake detector %q: %w", cfg.Providers.Wakeword.Name, err)
		}
		if c, ok := detector.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		slog.Info("provider created", "kind", "wakeword", "name", cfg.Providers.Wakeword.Name)
		deps.Wake = gate.NewWakeGate(a.device, detector, cfg.Audio.SampleRate, gateOpts...)
	}

	ctrl, err := turn.New(deps, turn.Settings{
		Mode: cfg.Conversation.Mode,
		Activity: gate.ActivityParams{
			Aggressiveness: cfg.VAD.Aggressiveness,
			SilenceTimeout: cfg.VAD.SilenceTimeout,
			FrameDuration:  cfg.VAD.FrameDuration,
		},
		Wake: gate.WakeParams{
			FrameDuration: cfg.Wakeword.FrameDuration,
			Threshold:     cfg.Wakeword.Threshold,
		},
		ListenWindow: cfg.Wakeword.ListenWindow,
		IdleLimit:    cfg.Wakeword.IdleLimit,
	}, turn.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.controller = ctrl
	return nil
}

// registerTranscriptWakeword registers the "transcript" detector, which
// matches the configured phrases against transcripts of the rolling input
// window produced by recognizer.
func (a *App) registerTranscriptWakeword(recognizer stt.Provider) {
	ww, rate := a.cfg.Wakeword, a.cfg.Audio.SampleRate
	a.reg.RegisterWakeword("transcript", func(e config.ProviderEntry) (wakeword.Detector, error) {
		var opts []transcript.Option
		if d := optDuration(e.Options, "window"); d > 0 {
			opts = append(opts, transcript.WithWindow(d))
		}
		if d := optDuration(e.Options, "hop"); d > 0 {
			opts = append(opts, transcript.WithHop(d))
		}
		if f := optFloat(e.Options, "energy_floor"); f > 0 {
			opts = append(opts, transcript.WithEnergyFloor(f))
		}
		return transcript.New(recognizer, ww.Phrases, rate, opts...)
	})
}

// initObservers attaches the console echo and prepares the health handler
// and the optional HTTP server.
func (a *App) initObservers() {
	if a.consoleOut != nil {
		var opts []console.Option
		if a.prompt && a.cfg.Conversation.Mode == turn.ModePushToTalk {
			opts = append(opts, console.WithPrompt())
		}
		detach := console.NewPrinter(a.consoleOut, opts...).Attach(a.events)
		a.closers = append(a.closers, func() error { detach(); return nil })
	}

	a.health = health.New(
		health.WithCheckers(
			health.FallbackChecker(a.stt.Group()),
			health.FallbackChecker(a.llm.Group()),
			health.FallbackChecker(a.tts.Group()),
		),
		health.WithInfo(a.info),
	)

	if !a.ui {
		return
	}
	mh := a.metricsHandler
	if mh == nil {
		mh = promhttp.Handler()
	}
	srvOpts := []server.Option{
		server.WithHealth(a.health),
		server.WithMetricsHandler(mh),
		server.WithMetrics(a.metrics),
	}
	if tls := a.cfg.Server.TLS; tls != nil {
		srvOpts = append(srvOpts, server.WithTLS(tls.CertFile, tls.KeyFile))
	}
	a.server = server.New(a.cfg.Server.ListenAddr, a.events, srvOpts...)
}

func conversationOptions(c config.ConversationConfig, m *observe.Metrics) []conversation.Option {
	opts := []conversation.Option{
		conversation.WithSystemPrompt(c.SystemPrompt),
		conversation.WithMaxTokens(c.MaxTokens),
		conversation.WithMaxHistoryPairs(c.MaxHistoryPairs),
		conversation.WithTemperature(c.Temperature),
	}
	if m != nil {
		opts = append(opts, conversation.WithMetrics(m))
	}
	return opts
}

// info is reported by /healthz.
func (a *App) info() map[string]string {
	s := a.controller.Snapshot()
	return map[string]string{
		"mode":               string(s.Mode),
		"state":              string(s.State),
		"cumulative_silence": s.CumulativeSilence.String(),
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Events returns the notification channel the controller publishes on.
func (a *App) Events() *notify.Channel { return a.events }

// Health returns the probe handler.
func (a *App) Health() *health.Handler { return a.health }

// Run drives the controller with cmds until ctx is cancelled or the
// controller quits, serving the event feed and watching the config file
// alongside. The first error of any part ends all of them.
func (a *App) Run(ctx context.Context, cmds <-chan turn.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.controller.Run(ctx, cmds)
	})

	if a.server != nil {
		g.Go(func() error { return a.server.Run(ctx) })
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.cfg, a.onConfigChange)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error {
				<-ctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	slog.Info("app running", "mode", a.cfg.Conversation.Mode, "ui", a.server != nil)
	return g.Wait()
}

// onConfigChange applies what can change at runtime and reports the rest.
func (a *App) onConfigChange(prev, next *config.Config) {
	if a.modeOverride != "" {
		next.Conversation.Mode = a.modeOverride
	}
	d := config.Diff(prev, next)
	if d.LogLevelChanged {
		observe.SetLogLevel(string(d.NewLogLevel))
		slog.Info("config: log level changed", "level", d.NewLogLevel)
	}
	if d.ConversationChanged {
		a.responder.Apply(conversationOptions(next.Conversation, nil)...)
		slog.Info("config: conversation settings applied")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// ─── Close ───────────────────────────────────────────────────────────────────

// Close releases every provider and the audio device. It is idempotent.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				slog.Warn("close error", "err", err)
				errs = append(errs, err)
			}
		}
		a.closeErr = errors.Join(errs...)
		slog.Info("shutdown complete")
	})
	return a.closeErr
}
