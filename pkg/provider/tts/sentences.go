package tts

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

const (
	// sentenceLookahead bounds how many sentence requests may be in flight at
	// once for batch backends.
	sentenceLookahead = 4

	// audioChanBuf is the buffer depth of channels returned by Pipeline.
	audioChanBuf = 256

	// ChunkSize is the size of each PCM slice emitted by Pipeline.
	ChunkSize = 4096
)

// SynthesizeFunc renders one complete sentence to raw PCM.
type SynthesizeFunc func(ctx context.Context, sentence string) ([]byte, error)

// FindSentenceBoundary returns the index of the first '.', '!' or '?' that is
// either at the end of s or immediately followed by whitespace, or -1.
// "3.14" is not split; "Dr. Smith" is.
func FindSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}

// Sentences assembles fragments from text into complete, trimmed sentences.
// A trailing partial sentence is flushed when text closes. The returned
// channel closes when text closes or ctx is cancelled.
func Sentences(ctx context.Context, text <-chan string) <-chan string {
	out := make(chan string, sentenceLookahead)
	go func() {
		defer close(out)
		emit := func(s string) bool {
			if s == "" {
				return true
			}
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var buf strings.Builder
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					emit(strings.TrimSpace(buf.String()))
					return
				}
				buf.WriteString(fragment)
				for {
					s := buf.String()
					idx := FindSentenceBoundary(s)
					if idx < 0 {
						break
					}
					buf.Reset()
					buf.WriteString(s[idx+1:])
					if !emit(strings.TrimSpace(s[:idx+1])) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Pipeline drives a batch backend from a fragment stream. Each sentence is
// synthesised by synth with up to sentenceLookahead requests in flight, and
// the PCM is emitted in sentence order in ChunkSize slices. The first
// synthesis error is logged and ends the stream.
func Pipeline(ctx context.Context, text <-chan string, synth SynthesizeFunc) <-chan []byte {
	type result struct {
		pcm []byte
		err error
	}

	// Stopping the collector unwinds the dispatcher and accumulator.
	ctx, cancel := context.WithCancel(ctx)
	audioCh := make(chan []byte, audioChanBuf)
	sentences := Sentences(ctx, text)
	queue := make(chan chan result, sentenceLookahead)

	go func() {
		defer close(queue)
		for {
			select {
			case sentence, ok := <-sentences:
				if !ok {
					return
				}
				ch := make(chan result, 1)
				select {
				case queue <- ch:
				case <-ctx.Done():
					return
				}
				go func(s string) {
					pcm, err := synth(ctx, s)
					ch <- result{pcm: pcm, err: err}
				}(sentence)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(audioCh)
		defer cancel()
		for ch := range queue {
			var res result
			select {
			case res = <-ch:
			case <-ctx.Done():
				return
			}
			if res.err != nil {
				if ctx.Err() == nil {
					slog.Warn("tts: sentence synthesis failed", "err", res.err)
				}
				return
			}
			if !emitChunks(ctx, audioCh, res.pcm) {
				return
			}
		}
	}()
	return audioCh
}

// emitChunks sends pcm on out in ChunkSize slices. It returns false if ctx
// was cancelled first.
func emitChunks(ctx context.Context, out chan<- []byte, pcm []byte) bool {
	for len(pcm) > 0 {
		end := min(ChunkSize, len(pcm))
		select {
		case out <- pcm[:end]:
		case <-ctx.Done():
			return false
		}
		pcm = pcm[end:]
	}
	return true
}
