package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidFrame marks frames the pipeline cannot convert. Callers drop the
// frame and keep the session alive.
var ErrInvalidFrame = errors.New("invalid audio frame")

// Framer converts capture frames of any rate and channel count into
// canonical PCM chunks and pushes them onto the queue. Sub-chunk bytes are
// retained in an internal accumulator until the next call completes them.
type Framer struct {
	targetRate int
	chunkBytes int
	queue      *ChunkQueue

	mu      sync.Mutex
	pending bytes.Buffer
}

// NewFramer creates a framer producing chunkSamples-sized chunks at
// targetRate, delivered to queue.
func NewFramer(targetRate, chunkSamples int, queue *ChunkQueue) *Framer {
	return &Framer{
		targetRate: targetRate,
		chunkBytes: chunkSamples * BytesPerSample,
		queue:      queue,
	}
}

// Process converts one frame and pushes every completed chunk downstream.
// It returns the number of chunks emitted. Conversion errors leave the
// accumulator untouched so subsequent frames are unaffected.
func (f *Framer) Process(frame Frame) (int, error) {
	if frame.SampleRate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %d", ErrInvalidFrame, frame.SampleRate)
	}
	if frame.Channels < 1 {
		return 0, fmt.Errorf("%w: channel count %d", ErrInvalidFrame, frame.Channels)
	}
	if len(frame.Samples) == 0 {
		return 0, nil
	}

	mono := downmix(frame.Samples, frame.Channels)
	if frame.SampleRate != f.targetRate {
		mono = resampleLinear(mono, frame.SampleRate, f.targetRate)
	}
	if len(mono) == 0 {
		return 0, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending.Write(quantizeS16LE(mono))

	emitted := 0
	for f.pending.Len() >= f.chunkBytes {
		chunk := make([]byte, f.chunkBytes)
		if _, err := f.pending.Read(chunk); err != nil {
			return emitted, fmt.Errorf("failed to read from accumulator: %w", err)
		}
		f.queue.Push(chunk)
		emitted++
	}
	return emitted, nil
}

// Reset discards any accumulated sub-chunk bytes. Called at session open so
// a new recording never starts with stale audio.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.Reset()
}

// PendingBytes returns the size of the unconsumed remainder. Always smaller
// than one chunk after Process returns.
func (f *Framer) PendingBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Len()
}

// downmix averages interleaved channels per sample index. Trailing samples
// that do not fill a complete multi-channel frame are truncated.
func downmix(samples []int16, channels int) []float64 {
	if channels == 1 {
		out := make([]float64, len(samples))
		for i, s := range samples {
			out[i] = float64(s)
		}
		return out
	}

	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i*channels+c])
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// resampleLinear converts the mono signal from rate src to rate dst by
// linear interpolation, yielding round(len*dst/src) samples.
func resampleLinear(in []float64, src, dst int) []float64 {
	if src == dst || len(in) == 0 {
		return in
	}

	n := int(math.Round(float64(len(in)) * float64(dst) / float64(src)))
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	step := float64(src) / float64(dst)
	last := len(in) - 1
	for j := range out {
		pos := float64(j) * step
		i := int(pos)
		if i >= last {
			out[j] = in[last]
			continue
		}
		frac := pos - float64(i)
		out[j] = in[i] + (in[i+1]-in[i])*frac
	}
	return out
}

// quantizeS16LE clips samples to the signed 16-bit range and truncates
// (not rounds) to integer PCM, serialized little-endian.
func quantizeS16LE(in []float64) []byte {
	out := make([]byte, len(in)*BytesPerSample)
	for i, v := range in {
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(v)))
	}
	return out
}
