// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/echovault/pkg/provider/tts"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the voice ID used for synthesis.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voiceID = voiceID
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
// Only pcm_* formats are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the API origin (ws:// or wss://).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	endpoint     string
	sampleRate   int
}

// New creates a new ElevenLabs Provider. apiKey and a voice are required.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpoint:     defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	if p.voiceID == "" {
		return nil, errors.New("elevenlabs: voice must not be empty")
	}
	rate, err := parsePCMFormat(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return p.sampleRate }

// ---- WebSocket message types ----

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is a message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// SynthesizeStream opens a WebSocket to ElevenLabs, pipes text fragments from
// text, and returns a channel emitting raw PCM chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	boi, _ := json.Marshal(boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		XiAPIKey:      p.apiKey,
	})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 256)
	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			p.readAudio(ctx, conn, audioCh)
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					// An empty text message asks the server to flush and finish.
					eos, _ := json.Marshal(textMessage{Text: ""})
					_ = conn.Write(ctx, websocket.MessageText, eos)
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				msg, _ := json.Marshal(textMessage{Text: fragment})
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					slog.Warn("elevenlabs: send text", "err", err)
					return
				}
			case <-readDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// readAudio forwards decoded PCM until the final message, a read error or
// cancellation.
func (p *Provider) readAudio(ctx context.Context, conn *websocket.Conn, out chan<- []byte) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		pcm, final, err := parseAudioResponse(msg)
		if err != nil {
			slog.Warn("elevenlabs: bad message", "err", err)
			continue
		}
		if len(pcm) > 0 {
			select {
			case out <- pcm:
			case <-ctx.Done():
				return
			}
		}
		if final {
			return
		}
	}
}

// streamURL builds the stream-input endpoint for the configured voice.
func (p *Provider) streamURL() string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.endpoint, url.PathEscape(p.voiceID), q.Encode())
}

// parseAudioResponse decodes one server message. A message carrying only an
// error text is returned as an error.
func parseAudioResponse(data []byte) (pcm []byte, final bool, err error) {
	var resp audioResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, err
	}
	if resp.Audio == "" && resp.Message != "" && !resp.IsFinal {
		return nil, false, errors.New(resp.Message)
	}
	if resp.Audio != "" {
		pcm, err = base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return nil, false, err
		}
	}
	return pcm, resp.IsFinal, nil
}

// parsePCMFormat extracts the sample rate from an output format such as
// "pcm_24000".
func parsePCMFormat(format string) (int, error) {
	rate, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (want pcm_<rate>)", format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return n, nil
}
