// Package whisper transcribes utterances with whisper.cpp, either through a
// running whisper-server ([Provider]) or in-process via the CGO bindings
// ([NativeProvider]).
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
)

const (
	// whisper models are trained on 16 kHz mono audio.
	modelSampleRate = 16000

	defaultLanguage = "en"
)

var _ stt.Provider = (*Provider)(nil)

// Provider sends each utterance to a whisper.cpp server's /inference
// endpoint as a WAV upload.
type Provider struct {
	endpoint string
	model    string
	language string
	client   *http.Client
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use (e.g. "base.en"). Empty
// leaves the server on the model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the spoken language ("en", "de", "auto"). Defaults to
// "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New returns a Provider for the server at serverURL, for example
// "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL is required")
	}
	p := &Provider{
		endpoint: strings.TrimRight(serverURL, "/") + "/inference",
		language: defaultLanguage,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe resamples the utterance to 16 kHz and returns the server's
// transcript with surrounding whitespace removed.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", stt.ErrEmptyAudio
	}
	wav := audio.EncodeWAV(audio.Resample(samples, sampleRate, modelSampleRate), modelSampleRate)
	body, contentType, err := p.form(wav)
	if err != nil {
		return "", fmt.Errorf("whisper: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: inference: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode inference response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// form encodes wav and the request parameters as multipart/form-data.
func (p *Provider) form(wav []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"language", p.language},
		{"model", p.model},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
