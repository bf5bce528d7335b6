// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Each Transcribe call opens a short-lived stream, uploads the utterance in
// fixed-size chunks, asks Deepgram to flush with a CloseStream message, and
// joins every final result received before the server closes the socket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/echovault/pkg/audio"
	"github.com/MrWong99/echovault/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// uploadChunkMs is the audio duration sent per WebSocket message.
	uploadChunkMs = 100
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Keyword is a vocabulary hint with a provider-specific boost intensity.
type Keyword struct {
	Word  string
	Boost float64
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithKeywords boosts recognition of uncommon words such as the assistant's
// name.
func WithKeywords(kw ...Keyword) Option {
	return func(p *Provider) {
		p.keywords = append(p.keywords, kw...)
	}
}

// WithEndpoint overrides the streaming endpoint (ws:// or wss://).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []Keyword
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", stt.ErrEmptyAudio
	}
	wsURL, err := p.buildURL(sampleRate)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	// Reads run concurrently with the upload so the server never stalls on a
	// full send buffer.
	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := readFinals(ctx, conn)
		resCh <- result{text, err}
	}()

	chunk := sampleRate * uploadChunkMs / 1000
	if chunk <= 0 {
		chunk = len(samples)
	}
	for off := 0; off < len(samples); off += chunk {
		end := min(off+chunk, len(samples))
		if err := conn.Write(ctx, websocket.MessageBinary, audio.SamplesToBytes(samples[off:end])); err != nil {
			return "", fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resCh:
		if res.err != nil {
			return "", res.err
		}
		conn.Close(websocket.StatusNormalClosure, "done")
		return res.text, nil
	}
}

// readFinals collects final transcripts until the server sends its closing
// Metadata message or closes the connection.
func readFinals(ctx context.Context, conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// A close frame from the server ends the stream normally.
			if websocket.CloseStatus(err) != -1 {
				return strings.Join(parts, " "), nil
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		if isMetadata(msg) {
			return strings.Join(parts, " "), nil
		}
		text, final, ok := parseDeepgramResponse(msg)
		if ok && final && text != "" {
			parts = append(parts, text)
		}
	}
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "Jarvis:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Word, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse parses a raw Deepgram message. ok is false for
// messages that carry no transcript.
func parseDeepgramResponse(data []byte) (text string, final bool, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}

func isMetadata(data []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &head) == nil && head.Type == "Metadata"
}
