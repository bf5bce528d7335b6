// Package openai provides a TTS provider backed by the OpenAI speech API. It
// requests raw PCM, which OpenAI delivers as 24 kHz 16-bit mono.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	// SampleRate is the fixed rate of OpenAI "pcm" responses.
	SampleRate = 24000

	defaultModel = oai.SpeechModelGPT4oMiniTTS
	defaultVoice = oai.AudioSpeechNewParamsVoiceAlloy
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the voice (e.g., "alloy", "onyx").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = oai.AudioSpeechNewParamsVoice(voice)
	}
}

// WithInstructions steers delivery for models that support it.
func WithInstructions(instructions string) Option {
	return func(p *Provider) {
		p.instructions = instructions
	}
}

// WithSpeed sets the playback speed in the range 0.25 to 4.0.
func WithSpeed(speed float64) Option {
	return func(p *Provider) {
		p.speed = speed
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, option.WithBaseURL(url))
	}
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	voice        oai.AudioSpeechNewParamsVoice
	instructions string
	speed        float64
	reqOpts      []option.RequestOption
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{
		model:   defaultModel,
		voice:   defaultVoice,
		reqOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(p)
	}
	if p.speed != 0 && (p.speed < 0.25 || p.speed > 4) {
		return nil, fmt.Errorf("openai tts: speed %g out of range [0.25, 4]", p.speed)
	}
	p.client = oai.NewClient(p.reqOpts...)
	return p, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return SampleRate }

// SynthesizeStream implements tts.Provider. Sentences are requested through
// the shared pipeline; each response body is streamed in as it arrives.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	return tts.Pipeline(ctx, text, p.synthesize), nil
}

func (p *Provider) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	params := oai.AudioSpeechNewParams{
		Input:          sentence,
		Model:          p.model,
		Voice:          p.voice,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}
	if p.speed != 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	// An odd trailing byte would shift every following sample.
	return pcm[:len(pcm)&^1], nil
}
