// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (whisper-1 and the gpt-4o transcribe models).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

const (
	defaultModel    = oai.AudioModelWhisper1
	defaultLanguage = "en"

	// uploadSampleRate keeps uploads small; the API resamples internally.
	uploadSampleRate = 16000
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g., "whisper-1", "gpt-4o-transcribe").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = oai.AudioModel(model)
	}
}

// WithLanguage sets the ISO-639-1 input language hint. Empty lets the API
// detect the language.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, option.WithBaseURL(url))
	}
}

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	reqOpts  []option.RequestOption
}

// New constructs a new OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	p := &Provider{
		model:    defaultModel,
		language: defaultLanguage,
		reqOpts:  []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(p.reqOpts...)
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", stt.ErrEmptyAudio
	}
	wav := audio.EncodeWAV(audio.Resample(samples, sampleRate, uploadSampleRate), uploadSampleRate)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: p.model,
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
