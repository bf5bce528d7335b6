// Package turn implements the turn-taking state machine that drives a voice
// conversation: capture an utterance, transcribe it, ask the responder, speak
// the reply, and go back to waiting.
//
// A [Controller] runs in one of two modes fixed at construction:
//
//   - push-to-talk: recording starts and stops on explicit commands;
//   - always-listening: a wake phrase opens a conversation that continues
//     turn after turn until the user has been silent for the idle limit.
//
// Every state change is published on a [notify.Publisher] so passive
// observers (console echo, web event feed) can follow along. Nothing flows
// back from observers into the controller.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/echovault/internal/gate"
	"github.com/MrWong99/echovault/internal/notify"
	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// Mode selects how turns are started.
type Mode string

const (
	ModePushToTalk      Mode = "push-to-talk"
	ModeAlwaysListening Mode = "always-listening"
)

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePushToTalk, ModeAlwaysListening:
		return m, nil
	default:
		return "", fmt.Errorf("turn: unknown mode %q (want %q or %q)", s, ModePushToTalk, ModeAlwaysListening)
	}
}

// State is the controller's current activity. The string values are the
// status names published on the notification channel.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateWake         State = "wake"
	StateListening    State = "listening"
)

// Status details published alongside a return to a waiting state.
const (
	DetailNoAudio          = "No audio recorded."
	DetailNoTranscript     = "Could not transcribe audio."
	DetailNoResponse       = "No response."
	DetailMicrophoneFailed = "Could not open the microphone."
	DetailSTTFailed        = "Transcription failed."
	DetailLLMFailed        = "Response failed."
	DetailTTSFailed        = "Playback failed."
)

// Defaults for always-listening mode.
const (
	DefaultListenWindow = 5 * time.Second
	DefaultIdleLimit    = 30 * time.Second
)

// Responder produces replies and owns the conversation history.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
	ResetHistory()
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Mode  Mode
	State State

	// CumulativeSilence is the silence accumulated across listen windows of
	// the current always-listening conversation.
	CumulativeSilence time.Duration
}

// Deps are the collaborators of a Controller. Recorder is required in
// push-to-talk mode; Activity and Wake are required in always-listening
// mode.
type Deps struct {
	STT       stt.Provider
	Responder Responder
	TTS       tts.Provider
	Sink      audio.Sink
	Notify    notify.Publisher

	Recorder *gate.Recorder
	Activity *gate.ActivityGate
	Wake     *gate.WakeGate
}

// Settings are the plain configuration values of a Controller.
type Settings struct {
	Mode Mode

	// Activity configures every listen window in always-listening mode.
	// MaxWait is replaced by ListenWindow.
	Activity gate.ActivityParams

	// Wake configures the wake phrase scan.
	Wake gate.WakeParams

	// ListenWindow is how long each listen waits for speech to start.
	ListenWindow time.Duration

	// IdleLimit is the cumulative silence that ends a conversation.
	IdleLimit time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the turn-taking state machine. Run drives it; Snapshot may be
// called from any goroutine.
type Controller struct {
	deps     Deps
	settings Settings
	metrics  *observe.Metrics

	mu      sync.Mutex
	state   State
	silence time.Duration
}

// New validates deps against settings.Mode and returns a Controller in
// [StateIdle].
func New(deps Deps, settings Settings, opts ...Option) (*Controller, error) {
	if settings.ListenWindow <= 0 {
		settings.ListenWindow = DefaultListenWindow
	}
	if settings.IdleLimit <= 0 {
		settings.IdleLimit = DefaultIdleLimit
	}

	var errs []error
	if _, err := ParseMode(string(settings.Mode)); err != nil {
		errs = append(errs, err)
	}
	if deps.STT == nil {
		errs = append(errs, errors.New("speech-to-text provider is required"))
	}
	if deps.Responder == nil {
		errs = append(errs, errors.New("responder is required"))
	}
	if deps.TTS == nil {
		errs = append(errs, errors.New("text-to-speech provider is required"))
	}
	if deps.Sink == nil {
		errs = append(errs, errors.New("audio sink is required"))
	}
	switch settings.Mode {
	case ModePushToTalk:
		if deps.Recorder == nil {
			errs = append(errs, errors.New("push-to-talk mode requires a recorder"))
		}
	case ModeAlwaysListening:
		if deps.Activity == nil {
			errs = append(errs, errors.New("always-listening mode requires an activity gate"))
		}
		if deps.Wake == nil {
			errs = append(errs, errors.New("always-listening mode requires a wake gate"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}

	if deps.Notify == nil {
		deps.Notify = notify.New()
	}
	c := &Controller{
		deps:     deps,
		settings: settings,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Run drives the controller until ctx is cancelled, a quit command arrives,
// or (in push-to-talk mode) cmds is closed. It returns an error only when
// the wake scan cannot open the input device.
func (c *Controller) Run(ctx context.Context, cmds <-chan Command) error {
	slog.Info("turn: controller started", "mode", c.settings.Mode)
	defer slog.Info("turn: controller stopped", "mode", c.settings.Mode)

	c.setState(ctx, StateIdle, "")
	if c.settings.Mode == ModeAlwaysListening {
		return c.runWake(ctx, cmds)
	}
	return c.runManual(ctx, cmds)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Mode: c.settings.Mode, State: c.state, CumulativeSilence: c.silence}
}

// setState records and publishes s. detail is attached to the notification
// when non-empty.
func (c *Controller) setState(ctx context.Context, s State, detail string) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.RecordTransition(ctx, string(s))
	p := notify.Payload{notify.KeyStatus: string(s)}
	if detail != "" {
		p[notify.KeyDetail] = detail
	}
	c.deps.Notify.Publish(notify.StatusChanged, p)
}

func (c *Controller) setSilence(d time.Duration) {
	c.mu.Lock()
	c.silence = d
	c.mu.Unlock()
}

// resetConversation clears the responder history and announces it.
func (c *Controller) resetConversation() {
	c.deps.Responder.ResetHistory()
	c.deps.Notify.Publish(notify.ConversationReset, nil)
}
