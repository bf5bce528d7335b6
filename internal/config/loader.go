package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/echovault/internal/turn"
	"github.com/MrWong99/echovault/pkg/provider/vad"
)

// ValidProviderNames lists the built-in provider names per kind. Unknown
// names only produce a warning so third-party factories can be registered.
var ValidProviderNames = map[string][]string{
	"stt":      {"whisper-native", "whisper", "openai", "deepgram"},
	"llm":      {"anthropic", "openai", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":      {"piper", "coqui", "openai", "elevenlabs"},
	"vad":      {"webrtc", "energy"},
	"wakeword": {"transcript"},
	"audio":    {"portaudio"},
}

// APIKeyEnv maps hosted provider names to the environment variable holding
// their API key.
var APIKeyEnv = map[string]string{
	"anthropic":  "ANTHROPIC_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"deepgram":   "DEEPGRAM_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
}

// Load reads the .env file in the working directory (when present) and the
// YAML file at path, applies environment overrides and validates the result.
// A missing config file is not an error: the defaults are used instead.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: could not read .env file", "err", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("config: file not found, using defaults", "path", path)
		data = nil
	case err != nil:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data), os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults, applies API keys
// found through getenv, and validates the result.
func LoadFromReader(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg, err := Decode(r)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses YAML from r over [Default] without validating. Unknown keys
// are rejected. An empty document yields the defaults.
//
// A provider entry whose name is omitted or equal to the default backend
// inherits the default's model, base URL and options; an entry naming a
// different backend is taken as written.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	defaults := cfg.Providers
	cfg.Providers = ProvidersConfig{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	p := &cfg.Providers
	p.STT = p.STT.withDefaults(defaults.STT)
	p.LLM = p.LLM.withDefaults(defaults.LLM)
	p.TTS = p.TTS.withDefaults(defaults.TTS)
	p.VAD = p.VAD.withDefaults(defaults.VAD)
	p.Wakeword = p.Wakeword.withDefaults(defaults.Wakeword)
	p.Audio = p.Audio.withDefaults(defaults.Audio)
	return cfg, nil
}

func (e ProviderEntry) withDefaults(d ProviderEntry) ProviderEntry {
	if e.Name != "" && e.Name != d.Name {
		return e
	}
	e.Name = d.Name
	if e.Model == "" {
		e.Model = d.Model
	}
	if e.BaseURL == "" {
		e.BaseURL = d.BaseURL
	}
	for k, v := range d.Options {
		if _, ok := e.Options[k]; ok {
			continue
		}
		if e.Options == nil {
			e.Options = make(map[string]any, len(d.Options))
		}
		e.Options[k] = v
	}
	return e
}

// ApplyEnv sets the API key of every provider entry, fallbacks included,
// whose name has an entry in [APIKeyEnv] and whose variable is set. The
// environment wins over the file.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	for _, e := range cfg.Providers.entries() {
		applyEnv(e, getenv)
	}
}

func applyEnv(e *ProviderEntry, getenv func(string) string) {
	if name, ok := APIKeyEnv[e.Name]; ok {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			e.APIKey = v
		}
	}
	for i := range e.Fallbacks {
		applyEnv(&e.Fallbacks[i], getenv)
	}
}

// entries returns pointers to the top-level entries keyed by kind order.
func (p *ProvidersConfig) entries() []*ProviderEntry {
	return []*ProviderEntry{&p.STT, &p.LLM, &p.TTS, &p.VAD, &p.Wakeword, &p.Audio}
}

// Validate checks that cfg is coherent. It returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if err := vad.ValidateFrameConfig(cfg.Audio.SampleRate, int(cfg.VAD.FrameDuration.Milliseconds())); err != nil {
		errs = append(errs, fmt.Errorf("audio.sample_rate / vad.frame_duration: %w", err))
	}
	if a := cfg.VAD.Aggressiveness; a < vad.MinAggressiveness || a > vad.MaxAggressiveness {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [%d, %d]", a, vad.MinAggressiveness, vad.MaxAggressiveness))
	}
	if cfg.VAD.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("vad.silence_timeout must be positive, got %s", cfg.VAD.SilenceTimeout))
	}

	if _, err := turn.ParseMode(string(cfg.Conversation.Mode)); err != nil {
		errs = append(errs, fmt.Errorf("conversation.mode: %w", err))
	}
	if cfg.Conversation.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens must be positive, got %d", cfg.Conversation.MaxTokens))
	}
	if cfg.Conversation.MaxHistoryPairs <= 0 {
		errs = append(errs, fmt.Errorf("conversation.max_history_pairs must be positive, got %d", cfg.Conversation.MaxHistoryPairs))
	}
	if t := cfg.Conversation.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %.2f is out of range [0, 2]", t))
	}

	ww := cfg.Wakeword
	if ww.Threshold < 0 || ww.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("wakeword.threshold %.2f is out of range [0, 1)", ww.Threshold))
	}
	if ww.FrameDuration <= 0 {
		errs = append(errs, fmt.Errorf("wakeword.frame_duration must be positive, got %s", ww.FrameDuration))
	}
	if ww.ListenWindow <= 0 {
		errs = append(errs, fmt.Errorf("wakeword.listen_window must be positive, got %s", ww.ListenWindow))
	}
	if ww.IdleLimit <= 0 {
		errs = append(errs, fmt.Errorf("wakeword.idle_limit must be positive, got %s", ww.IdleLimit))
	}
	if cfg.Conversation.Mode == turn.ModeAlwaysListening && len(ww.Phrases) == 0 {
		errs = append(errs, errors.New("wakeword.phrases must not be empty in always-listening mode"))
	}

	p := cfg.Providers
	for _, k := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"stt", p.STT}, {"llm", p.LLM}, {"tts", p.TTS},
		{"vad", p.VAD}, {"wakeword", p.Wakeword}, {"audio", p.Audio},
	} {
		errs = append(errs, validateEntry("providers."+k.kind, k.kind, k.entry, fallbackKinds[k.kind])...)
	}

	return errors.Join(errs...)
}

// fallbackKinds are the provider kinds that can be wrapped in a fallback
// chain.
var fallbackKinds = map[string]bool{"stt": true, "llm": true, "tts": true}

func validateEntry(path, kind string, e ProviderEntry, fallbacksAllowed bool) []error {
	var errs []error
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", path)}
	}
	validateProviderName(kind, e.Name)
	if env, ok := APIKeyEnv[e.Name]; ok && e.APIKey == "" && e.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s: %s requires an API key; set %s or %s.api_key", path, e.Name, env, path))
	}
	if len(e.Fallbacks) > 0 && !fallbacksAllowed {
		if fallbackKinds[kind] {
			errs = append(errs, fmt.Errorf("%s.fallbacks: nested fallbacks are not supported", path))
		} else {
			errs = append(errs, fmt.Errorf("%s.fallbacks is not supported for %s providers", path, kind))
		}
	}
	for i, fb := range e.Fallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("%s.fallbacks[%d]", path, i), kind, fb, false)...)
	}
	return errs
}

// validateProviderName warns when name is not a built-in provider of kind.
func validateProviderName(kind, name string) {
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
