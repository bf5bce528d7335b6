// Package mock provides a test double for the tts.Provider interface.
//
// Provider consumes the whole text stream, records the joined text, and then
// emits its scripted chunks.
//
// Example:
//
//	p := &mock.Provider{Chunks: [][]byte{{0x01, 0x00}}, Rate: 22050}
//	audio, _ := p.SynthesizeStream(ctx, tts.Text("hello"))
//	for range audio {}
//	p.Texts() // ["hello"]
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/echovault/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted, in order, by every successful SynthesizeStream call.
	Chunks [][]byte

	// Rate is returned by SampleRate. Zero means 22050.
	Rate int

	// SynthesizeErr, if non-nil, is returned by SynthesizeStream.
	SynthesizeErr error

	// Block, if non-nil, delays emission until it is closed or ctx is done.
	Block chan struct{}

	texts []string
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string) (<-chan []byte, error) {
	p.mu.Lock()
	err := p.SynthesizeErr
	chunks := append([][]byte(nil), p.Chunks...)
	block := p.Block
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		var sb strings.Builder
		for s := range text {
			sb.WriteString(s)
		}
		p.mu.Lock()
		p.texts = append(p.texts, sb.String())
		p.mu.Unlock()

		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Rate == 0 {
		return 22050
	}
	return p.Rate
}

// Texts returns the text synthesised by each completed call. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
