package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// ChunkQueue is a fixed-capacity FIFO of PCM chunks. Overflow evicts the
// oldest queued chunk so producers never block; live audio favors freshness
// over completeness. Chunks are never duplicated or reordered.
type ChunkQueue struct {
	mu      sync.Mutex
	ch      chan []byte
	evicted atomic.Uint64
}

// NewChunkQueue creates a queue holding at most capacity chunks.
func NewChunkQueue(capacity int) *ChunkQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ChunkQueue{ch: make(chan []byte, capacity)}
}

// Push inserts chunk without blocking. At capacity exactly one oldest chunk
// is evicted, then exactly one insertion is attempted. The push mutex makes
// the evict-then-insert pair atomic across producers.
func (q *ChunkQueue) Push(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- chunk:
		return
	default:
	}

	select {
	case <-q.ch:
		q.evicted.Add(1)
	default:
	}

	select {
	case q.ch <- chunk:
	default:
	}
}

// Pop removes the oldest chunk, waiting up to timeout. The second return is
// false when the wait timed out with nothing queued.
func (q *ChunkQueue) Pop(timeout time.Duration) ([]byte, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-q.ch:
		return chunk, true
	case <-timer.C:
		return nil, false
	}
}

// Drain discards all queued chunks and returns how many were dropped.
func (q *ChunkQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of chunks currently queued.
func (q *ChunkQueue) Len() int {
	return len(q.ch)
}

// Capacity returns the queue's fixed capacity.
func (q *ChunkQueue) Capacity() int {
	return cap(q.ch)
}

// Evicted returns how many chunks were dropped to admit newer ones.
func (q *ChunkQueue) Evicted() uint64 {
	return q.evicted.Load()
}
