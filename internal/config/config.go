// Package config provides the configuration schema, loader, and provider
// registry for the EchoVault voice assistant.
package config

import (
	"time"

	"github.com/MrWong99/echovault/internal/conversation"
	"github.com/MrWong99/echovault/internal/turn"
	"github.com/MrWong99/echovault/pkg/provider/wakeword"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader]; fields missing from the YAML keep the values of
// [Default].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Audio        AudioConfig        `yaml:"audio"`
	VAD          VADConfig          `yaml:"vad"`
	Wakeword     WakewordConfig     `yaml:"wakeword"`
	Conversation ConversationConfig `yaml:"conversation"`
	Providers    ProvidersConfig    `yaml:"providers"`
}

// ServerConfig holds the HTTP listener (event feed, probes, metrics) and
// logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM file paths for HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig describes the capture stream.
type AudioConfig struct {
	// SampleRate of the microphone stream in Hz. Must be a rate the VAD
	// supports (8000, 16000, 32000, 48000).
	SampleRate int `yaml:"sample_rate"`
}

// VADConfig tunes utterance segmentation.
type VADConfig struct {
	// Aggressiveness in [0, 3]; higher filters more non-speech.
	Aggressiveness int `yaml:"aggressiveness"`

	// SilenceTimeout is the trailing silence that ends an utterance.
	SilenceTimeout time.Duration `yaml:"silence_timeout"`

	// FrameDuration is 10ms, 20ms or 30ms.
	FrameDuration time.Duration `yaml:"frame_duration"`
}

// WakewordConfig tunes the wake phrase scan and the conversation it opens.
type WakewordConfig struct {
	// Phrases that start a conversation.
	Phrases []string `yaml:"phrases"`

	// Threshold a phrase score must exceed, in [0, 1).
	Threshold float64 `yaml:"threshold"`

	// FrameDuration is the length of each frame handed to the detector.
	FrameDuration time.Duration `yaml:"frame_duration"`

	// ListenWindow is how long each listen in a conversation waits for
	// speech to start.
	ListenWindow time.Duration `yaml:"listen_window"`

	// IdleLimit is the cumulative silence that ends a conversation.
	IdleLimit time.Duration `yaml:"idle_limit"`
}

// ConversationConfig controls the turn controller and the responder.
type ConversationConfig struct {
	// Mode is "push-to-talk" or "always-listening". The --mode flag
	// overrides it.
	Mode turn.Mode `yaml:"mode"`

	SystemPrompt    string  `yaml:"system_prompt"`
	MaxTokens       int     `yaml:"max_tokens"`
	MaxHistoryPairs int     `yaml:"max_history_pairs"`
	Temperature     float64 `yaml:"temperature"`
}

// ProvidersConfig selects the backend for each collaborator. Every entry is
// looked up by name in the [Registry].
type ProvidersConfig struct {
	STT      ProviderEntry `yaml:"stt"`
	LLM      ProviderEntry `yaml:"llm"`
	TTS      ProviderEntry `yaml:"tts"`
	VAD      ProviderEntry `yaml:"vad"`
	Wakeword ProviderEntry `yaml:"wakeword"`
	Audio    ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "whisper-native",
	// "anthropic", "piper").
	Name string `yaml:"name"`

	// APIKey authenticates hosted backends. The matching environment
	// variable overrides it, see [ApplyEnv].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's endpoint, or points at a local server.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the backend. For whisper-native it is the
	// path of the ggml model file.
	Model string `yaml:"model"`

	// Options holds backend-specific values not covered above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this backend fails. Only valid for
	// stt, llm and tts. Fallbacks cannot have fallbacks of their own.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Default returns the configuration used for every field the YAML leaves
// out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{SampleRate: 16000},
		VAD: VADConfig{
			Aggressiveness: 2,
			SilenceTimeout: time.Second,
			FrameDuration:  30 * time.Millisecond,
		},
		Wakeword: WakewordConfig{
			Phrases:       []string{"hey jarvis"},
			Threshold:     wakeword.DefaultThreshold,
			FrameDuration: 80 * time.Millisecond,
			ListenWindow:  turn.DefaultListenWindow,
			IdleLimit:     turn.DefaultIdleLimit,
		},
		Conversation: ConversationConfig{
			Mode:            turn.ModePushToTalk,
			SystemPrompt:    conversation.DefaultSystemPrompt,
			MaxTokens:       conversation.DefaultMaxTokens,
			MaxHistoryPairs: conversation.DefaultMaxHistoryPairs,
		},
		Providers: ProvidersConfig{
			STT:      ProviderEntry{Name: "whisper-native", Model: "models/ggml-base.en.bin", Options: map[string]any{"language": "en"}},
			LLM:      ProviderEntry{Name: "anthropic", Model: "claude-sonnet-4-5-20250929"},
			TTS:      ProviderEntry{Name: "piper", BaseURL: "http://localhost:5000"},
			VAD:      ProviderEntry{Name: "webrtc"},
			Wakeword: ProviderEntry{Name: "transcript"},
			Audio:    ProviderEntry{Name: "portaudio"},
		},
	}
}
