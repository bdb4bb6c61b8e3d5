package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Canonical PCM format for outbound transport: mono 16 kHz s16le in
// 800-sample chunks (50 ms each).
const (
	TargetSampleRate = 16000
	ChunkSamples     = 800
	BytesPerSample   = 2
	ChunkBytes       = ChunkSamples * BytesPerSample
)

// Wire names for the sample encodings capture clients may send.
const (
	EncodingS16LE = "pcm_s16le"
	EncodingF32LE = "pcm_f32le"
)

// Frame is one buffer of interleaved PCM samples handed over by a capture
// source. It is consumed exactly once by the Framer and never retained.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Captured   time.Time
}

// Duration returns the wall-clock span of audio the frame covers.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := len(f.Samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// DecodeS16LE converts little-endian 16-bit PCM bytes to samples. Odd
// trailing bytes are ignored.
func DecodeS16LE(data []byte) []int16 {
	n := len(data) / BytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return out
}

// DecodeF32LE converts little-endian float32 samples in [-1, 1] to int16
// scale, clipping out-of-range values.
func DecodeF32LE(data []byte) []int16 {
	n := len(data) / 4
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		v := float64(math.Float32frombits(bits)) * math.MaxInt16
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}
