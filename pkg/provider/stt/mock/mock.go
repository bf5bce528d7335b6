// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed scripted transcripts to the turn pipeline and inspect
// which utterances were submitted.
//
// Example:
//
//	p := &mock.Provider{Texts: []string{"what time is it", ""}}
//	text, _ := p.Transcribe(ctx, samples, 16000) // "what time is it"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/echovault/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the audio passed to Transcribe.
	Samples []int16
	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
//
// Transcribe resolves its result in this order: TranscribeErr,
// TranscribeFunc, the next entry of Texts, Text.
type Provider struct {
	mu sync.Mutex

	// Texts are returned one per call, in order.
	Texts []string

	// Text is returned once Texts is exhausted.
	Text string

	// TranscribeFunc, when set, computes the result for each call.
	TranscribeFunc func(ctx context.Context, samples []int16, sampleRate int) (string, error)

	// TranscribeErr, if non-nil, is returned by every call.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{
		Samples:    append([]int16(nil), samples...),
		SampleRate: sampleRate,
	})
	if p.TranscribeErr != nil {
		err := p.TranscribeErr
		p.mu.Unlock()
		return "", err
	}
	if fn := p.TranscribeFunc; fn != nil {
		p.mu.Unlock()
		return fn(ctx, samples, sampleRate)
	}
	text := p.Text
	if len(p.Texts) > 0 {
		text = p.Texts[0]
		p.Texts = p.Texts[1:]
	}
	p.mu.Unlock()
	return text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
