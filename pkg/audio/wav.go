package audio

import (
	"encoding/binary"
	"errors"
)

const wavHeaderSize = 44

// EncodeWAV wraps mono 16-bit samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(buf[32:34], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// WAVInfo is the format metadata of a decoded WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
}

// DecodeWAV walks the RIFF chunks of wav and returns its format and the raw
// PCM payload of the data chunk. Only 16-bit PCM is supported.
func DecodeWAV(wav []byte) (WAVInfo, []byte, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, nil, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		info   WAVInfo
		hasFmt bool
	)
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return WAVInfo{}, nil, errors.New("audio: truncated fmt chunk")
			}
			if bits := binary.LittleEndian.Uint16(wav[body+14 : body+16]); bits != 16 {
				return WAVInfo{}, nil, errors.New("audio: only 16-bit PCM WAV is supported")
			}
			info.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return WAVInfo{}, nil, errors.New("audio: data chunk before fmt chunk")
			}
			end := body + size
			// Streaming writers leave the size at 0 or 0xFFFFFFFF.
			if size == 0 || end > len(wav) {
				end = len(wav)
			}
			return info, wav[body:end], nil
		}

		off = body + size
		if size%2 != 0 {
			off++
		}
	}
	return WAVInfo{}, nil, errors.New("audio: missing data chunk")
}
