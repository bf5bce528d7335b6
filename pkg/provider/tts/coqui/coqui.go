// Package coqui provides a TTS provider backed by a local Coqui TTS server.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu), synthesising via GET /api/tts.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server, synthesising via
//     POST /tts_to_audio/ with a reference speaker.
//
// Both servers answer one WAV per request, so SynthesizeStream runs the
// shared sentence pipeline from package tts.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithOutputSampleRate(22050),
//	)
//	audio, err := p.SynthesizeStream(ctx, tts.Text("Hello there."))
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage   = "en"
	defaultTimeout    = 30 * time.Second
	defaultOutputRate = 22050
	xttsEndpoint      = "/tts_to_audio/"
	apiTTSEndpoint    = "/api/tts"
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server.
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker sets the speaker. In standard mode it is the speaker_id of a
// multi-speaker model; in XTTS mode it names the reference speaker WAV.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) {
		p.speaker = speaker
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate sets the rate all synthesised PCM is resampled to.
// Defaults to 22050 Hz.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates a new Coqui Provider targeting serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		outputRate: defaultOutputRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard:
	case APIModeXTTS:
		if p.speaker == "" {
			return nil, errors.New("coqui: xtts mode requires a speaker")
		}
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	if p.outputRate <= 0 {
		return nil, fmt.Errorf("coqui: invalid output sample rate %d", p.outputRate)
	}
	return p, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return p.outputRate }

// SynthesizeStream implements tts.Provider. Up to four sentence requests run
// concurrently; audio is emitted in sentence order.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	return tts.Pipeline(ctx, text, p.synthesize), nil
}

// synthesize renders one sentence and returns PCM at the output rate.
func (p *Provider) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, sentence)
	} else {
		req, err = p.standardRequest(ctx, sentence)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	info, pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if info.Channels != 1 {
		return nil, fmt.Errorf("coqui: expected mono audio, got %d channels", info.Channels)
	}
	if info.SampleRate == p.outputRate {
		return pcm, nil
	}
	return audio.SamplesToBytes(audio.Resample(audio.BytesToSamples(pcm), info.SampleRate, p.outputRate)), nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) xttsRequest(ctx context.Context, sentence string) (*http.Request, error) {
	data, err := json.Marshal(xttsRequest{
		Text:       sentence,
		SpeakerWav: p.speaker,
		Language:   p.language,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, sentence string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
}
