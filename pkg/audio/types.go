package audio

import (
	"encoding/binary"
	"time"
)

// Frame is a fixed-size block of mono, signed 16-bit PCM samples read from an
// input device. Frames are immutable once read; the consumer that read a
// frame owns it.
type Frame struct {
	// Samples holds the PCM samples. A frame shorter than the frame size the
	// source was opened with is a short read.
	Samples []int16

	// Seq is the zero-based position of the frame within its source.
	Seq uint64
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f.Samples) }

// Bytes returns the frame as little-endian 16-bit PCM.
func (f Frame) Bytes() []byte { return SamplesToBytes(f.Samples) }

// Utterance is a contiguous run of samples assembled from consecutive frames
// by a capture operation. The zero value is an empty utterance, which is a
// normal outcome of capturing and not an error.
type Utterance struct {
	// Samples holds mono 16-bit PCM.
	Samples []int16

	// SampleRate is the rate Samples was captured at, in Hz.
	SampleRate int

	// Frames is the number of frames that contributed to Samples.
	Frames int
}

// Empty reports whether the utterance holds no samples.
func (u Utterance) Empty() bool { return len(u.Samples) == 0 }

// Duration returns the playback length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes little-endian 16-bit PCM. A trailing odd byte is
// ignored.
func BytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
