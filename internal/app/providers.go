package app

import (
	"fmt"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/echovault/internal/config"
	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/audio/portaudio"
	"github.com/MrWong99/echovault/pkg/provider/llm"
	"github.com/MrWong99/echovault/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/echovault/pkg/provider/llm/openai"
	"github.com/MrWong99/echovault/pkg/provider/stt"
	"github.com/MrWong99/echovault/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/echovault/pkg/provider/stt/openai"
	"github.com/MrWong99/echovault/pkg/provider/stt/whisper"
	"github.com/MrWong99/echovault/pkg/provider/tts"
	"github.com/MrWong99/echovault/pkg/provider/tts/coqui"
	"github.com/MrWong99/echovault/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/echovault/pkg/provider/tts/openai"
	"github.com/MrWong99/echovault/pkg/provider/tts/piper"
	"github.com/MrWong99/echovault/pkg/provider/vad"
	"github.com/MrWong99/echovault/pkg/provider/vad/energy"
	"github.com/MrWong99/echovault/pkg/provider/vad/webrtc"
)

// RegisterBuiltinProviders wires every provider that ships with EchoVault
// into reg, except the "transcript" wake detector, which depends on the
// speech-to-text chain and is registered by [New].
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		modelPath := e.Model
		if modelPath == "" {
			modelPath = optString(e.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(e.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if e.Model != "" {
			opts = append(opts, oastt.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if e.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(e.BaseURL))
		}
		return oastt.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if e.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(e.BaseURL))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// Every any-llm-go backend except openai, which has its own SDK client.
	// Local backends (ollama, llamacpp, llamafile) only need a base URL.
	for _, backend := range anyllm.Backends() {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(backend, e.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		if org := optString(e.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(e.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("piper", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if v := optString(e.Options, "voice"); v != "" {
			opts = append(opts, piper.WithVoice(v))
		} else if e.Model != "" {
			opts = append(opts, piper.WithVoice(e.Model))
		}
		if _, ok := e.Options["speaker_id"]; ok {
			opts = append(opts, piper.WithSpeakerID(optInt(e.Options, "speaker_id")))
		}
		if s := optFloat(e.Options, "length_scale"); s > 0 {
			opts = append(opts, piper.WithLengthScale(s))
		}
		if r := optInt(e.Options, "sample_rate"); r > 0 {
			opts = append(opts, piper.WithSampleRate(r))
		}
		return piper.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if sp := optString(e.Options, "speaker"); sp != "" {
			opts = append(opts, coqui.WithSpeaker(sp))
		}
		if mode := optString(e.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if r := optInt(e.Options, "sample_rate"); r > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(r))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if e.Model != "" {
			opts = append(opts, oatts.WithModel(e.Model))
		}
		if v := optString(e.Options, "voice"); v != "" {
			opts = append(opts, oatts.WithVoice(v))
		}
		if in := optString(e.Options, "instructions"); in != "" {
			opts = append(opts, oatts.WithInstructions(in))
		}
		if s := optFloat(e.Options, "speed"); s > 0 {
			opts = append(opts, oatts.WithSpeed(s))
		}
		if e.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(e.BaseURL))
		}
		return oatts.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if v := optString(e.Options, "voice"); v != "" {
			opts = append(opts, elevenlabs.WithVoice(v))
		}
		if f := optString(e.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New()
	})

	reg.RegisterVAD("energy", func(e config.ProviderEntry) (vad.Engine, error) {
		raw, ok := e.Options["thresholds"].([]any)
		if !ok {
			return energy.New()
		}
		var t [vad.MaxAggressiveness + 1]float64
		if len(raw) != len(t) {
			return nil, fmt.Errorf("energy vad: options.thresholds needs %d values, got %d", len(t), len(raw))
		}
		for i, v := range raw {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("energy vad: options.thresholds[%d] is not a number", i)
			}
			t[i] = f
		}
		return energy.New(energy.WithThresholds(t))
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(e config.ProviderEntry) (audio.Device, error) {
		var opts []portaudio.Option
		if in := optString(e.Options, "input_device"); in != "" {
			opts = append(opts, portaudio.WithInputDevice(in))
		}
		if out := optString(e.Options, "output_device"); out != "" {
			opts = append(opts, portaudio.WithOutputDevice(out))
		}
		if n := optInt(e.Options, "playback_block"); n > 0 {
			opts = append(opts, portaudio.WithPlaybackBlock(n))
		}
		return portaudio.New(opts...)
	})
}

// optString returns opts[key] when it is a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt returns opts[key] as an int. YAML decodes whole numbers as int and
// everything else numeric as float64.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func optFloat(opts map[string]any, key string) float64 {
	f, _ := toFloat(opts[key])
	return f
}

// optDuration parses opts[key] as a Go duration string ("30s").
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
