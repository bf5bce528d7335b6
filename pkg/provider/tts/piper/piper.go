// Package piper provides a TTS provider backed by a Piper HTTP server
// (python -m piper.http_server). Each sentence is POSTed as JSON and the
// server answers with a mono 16-bit WAV.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	// DefaultSampleRate is the native rate of the medium-quality Piper voices.
	DefaultSampleRate = 22050
	defaultTimeout    = 30 * time.Second
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithVoice selects a voice on servers hosting more than one model.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithSpeakerID selects a speaker of a multi-speaker voice.
func WithSpeakerID(id int) Option {
	return func(p *Provider) {
		p.speakerID = &id
	}
}

// WithLengthScale scales phoneme durations; values above 1 slow speech down.
func WithLengthScale(scale float64) Option {
	return func(p *Provider) {
		p.lengthScale = scale
	}
}

// WithSampleRate sets the output rate. Audio at any other rate is resampled.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against a Piper HTTP server.
type Provider struct {
	serverURL   string
	voice       string
	speakerID   *int
	lengthScale float64
	sampleRate  int
	httpClient  *http.Client
}

// New creates a Piper provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("piper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		sampleRate: DefaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("piper: invalid sample rate %d", p.sampleRate)
	}
	if p.lengthScale < 0 {
		return nil, fmt.Errorf("piper: invalid length scale %g", p.lengthScale)
	}
	return p, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return p.sampleRate }

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	return tts.Pipeline(ctx, text, p.synthesize), nil
}

type synthRequest struct {
	Text        string  `json:"text"`
	Voice       string  `json:"voice,omitempty"`
	SpeakerID   *int    `json:"speaker_id,omitempty"`
	LengthScale float64 `json:"length_scale,omitempty"`
}

func (p *Provider) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	body, err := json.Marshal(synthRequest{
		Text:        sentence,
		Voice:       p.voice,
		SpeakerID:   p.speakerID,
		LengthScale: p.lengthScale,
	})
	if err != nil {
		return nil, fmt.Errorf("piper: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("piper: server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read response: %w", err)
	}
	info, pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("piper: %w", err)
	}
	if info.Channels != 1 {
		return nil, fmt.Errorf("piper: expected mono audio, got %d channels", info.Channels)
	}
	if info.SampleRate != p.sampleRate {
		pcm = audio.SamplesToBytes(audio.Resample(audio.BytesToSamples(pcm), info.SampleRate, p.sampleRate))
	}
	return pcm, nil
}
