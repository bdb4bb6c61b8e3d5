package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrNotWAV marks payloads without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE payload")

// DecodeWAV parses an uncompressed 16-bit PCM WAV payload into a capture
// frame, walking the RIFF sub-chunks for "fmt " and "data". Compressed
// formats and other bit depths are rejected.
func DecodeWAV(data []byte) (Frame, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Frame{}, ErrNotWAV
	}

	var (
		sampleRate int
		channels   int
		pcm        []byte
	)

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Tolerate a truncated final chunk; streamed WAV writers
			// often leave the declared size open-ended.
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Frame{}, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 {
				return Frame{}, fmt.Errorf("wav: unsupported audio format %d, want PCM", format)
			}
			if bits != 16 {
				return Frame{}, fmt.Errorf("wav: unsupported bit depth %d, want 16", bits)
			}
		case "data":
			pcm = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++ // RIFF chunks are word-aligned
		}
	}

	if sampleRate <= 0 || channels <= 0 {
		return Frame{}, fmt.Errorf("wav: missing or invalid fmt chunk")
	}
	if len(pcm) == 0 {
		return Frame{}, fmt.Errorf("wav: missing data chunk")
	}

	return Frame{
		Samples:    DecodeS16LE(pcm),
		SampleRate: sampleRate,
		Channels:   channels,
		Captured:   time.Now().UTC(),
	}, nil
}
