package sshclient

import (
	"sync"
	"sync/atomic"
	"time"
)

// MaxChunkBytes bounds the size of a single Chunk (spec.md §4.1).
const MaxChunkBytes = 16 * 1024

// DefaultRingBytesCapacity is the eviction budget applied when a Shell
// is created without an explicit override.
const DefaultRingBytesCapacity = 2 * 1024 * 1024

// DefaultMaxReadBytes bounds a single ReadBuffer call when the caller
// does not specify one.
const DefaultMaxReadBytes = 512 * 1024

// Chunk is an immutable unit of buffered shell output. Chunks are
// shared by reference between the ring and any live subscriber
// queues; nothing ever mutates Bytes after construction.
type Chunk struct {
	Seq    uint64
	TMs    float64
	Stream StreamKind
	Bytes  []byte
}

// CursorKind selects how ReadBuffer/AddListener locates its starting
// point in the ring (spec.md §4.1).
type CursorKind int

const (
	CursorKindHead CursorKind = iota
	CursorKindSeq
	CursorKindTimeMs
	CursorKindTailBytes
	CursorKindLive
)

// Cursor is a starting position for a buffer read or a live
// subscription.
type Cursor struct {
	Kind      CursorKind
	Seq       uint64
	TimeMs    float64
	TailBytes int
}

func CursorHead() Cursor              { return Cursor{Kind: CursorKindHead} }
func CursorAtSeq(seq uint64) Cursor   { return Cursor{Kind: CursorKindSeq, Seq: seq} }
func CursorAtTimeMs(t float64) Cursor { return Cursor{Kind: CursorKindTimeMs, TimeMs: t} }
func CursorTailBytesOf(n int) Cursor  { return Cursor{Kind: CursorKindTailBytes, TailBytes: n} }
func CursorLive() Cursor              { return Cursor{Kind: CursorKindLive} }

// DroppedRange reports a gap [FromSeq, ToSeq] that predates the
// current head and so cannot be replayed.
type DroppedRange struct {
	FromSeq uint64
	ToSeq   uint64
}

// BufferReadResult is the result of ReadBuffer.
type BufferReadResult struct {
	Chunks  []*Chunk
	NextSeq uint64
	Dropped *DroppedRange
}

// BufferStats is a point-in-time snapshot of the ring's counters.
type BufferStats struct {
	HeadSeq           uint64
	TailSeq           uint64
	UsedBytes         uint64
	DroppedBytesTotal uint64
}

// chunkRing is the per-Shell bounded FIFO of Chunks described in
// spec.md §3 and §4.1: a byte-budget-evicting ring with cursor-based
// replay. The fifo slice is guarded by mu for structural mutation
// (push/evict); the counters are additionally kept as atomics so
// CurrentSeq/BufferStats never need to take mu.
type chunkRing struct {
	mu  sync.Mutex
	fifo []*Chunk

	capacityBytes uint64

	nextSeq           atomic.Uint64
	headSeq           atomic.Uint64
	tailSeq           atomic.Uint64
	usedBytes         atomic.Uint64
	droppedBytesTotal atomic.Uint64
}

func newChunkRing(capacityBytes uint64) *chunkRing {
	if capacityBytes == 0 {
		capacityBytes = DefaultRingBytesCapacity
	}
	r := &chunkRing{capacityBytes: capacityBytes}
	r.nextSeq.Store(1)
	return r
}

// append partitions data into chunks no larger than MaxChunkBytes,
// assigns sequence numbers and a timestamp, pushes them to the FIFO
// tail, and evicts from the head until usedBytes is back within
// budget. It returns the chunks that were appended, in order, for the
// caller to fan out to the broadcast hub.
func (r *chunkRing) append(data []byte, stream StreamKind) []*Chunk {
	if len(data) == 0 {
		return nil
	}
	now := nowMs()

	r.mu.Lock()
	defer r.mu.Unlock()

	var appended []*Chunk
	for off := 0; off < len(data); off += MaxChunkBytes {
		end := off + MaxChunkBytes
		if end > len(data) {
			end = len(data)
		}
		payload := make([]byte, end-off)
		copy(payload, data[off:end])

		seq := r.nextSeq.Add(1) - 1
		c := &Chunk{Seq: seq, TMs: now, Stream: stream, Bytes: payload}

		r.fifo = append(r.fifo, c)
		r.tailSeq.Store(seq)
		if len(r.fifo) == 1 {
			r.headSeq.Store(seq)
		}
		r.usedBytes.Add(uint64(len(payload)))
		appended = append(appended, c)
	}

	r.evictLocked()
	return appended
}

// evictLocked pops chunks from the FIFO head until usedBytes is
// within capacityBytes. Caller must hold r.mu.
func (r *chunkRing) evictLocked() {
	for r.usedBytes.Load() > r.capacityBytes && len(r.fifo) > 0 {
		oldest := r.fifo[0]
		r.fifo = r.fifo[1:]
		n := uint64(len(oldest.Bytes))
		r.usedBytes.Add(-n) // unsigned wraparound subtract
		r.droppedBytesTotal.Add(n)
		if len(r.fifo) > 0 {
			r.headSeq.Store(r.fifo[0].Seq)
		} else {
			r.headSeq.Store(oldest.Seq + 1)
		}
	}
}

func (r *chunkRing) currentSeq() uint64 {
	return r.tailSeq.Load()
}

func (r *chunkRing) stats() BufferStats {
	return BufferStats{
		HeadSeq:           r.headSeq.Load(),
		TailSeq:           r.tailSeq.Load(),
		UsedBytes:         r.usedBytes.Load(),
		DroppedBytesTotal: r.droppedBytesTotal.Load(),
	}
}

// readBuffer implements the cursor semantics of spec.md §4.1.
func (r *chunkRing) readBuffer(cursor Cursor, maxBytes int) BufferReadResult {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxReadBytes
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tailSeq := r.tailSeq.Load()
	headSeq := r.headSeq.Load()

	if cursor.Kind == CursorKindLive {
		return BufferReadResult{NextSeq: tailSeq + 1}
	}

	startIdx := 0
	var dropped *DroppedRange

	switch cursor.Kind {
	case CursorKindHead:
		startIdx = 0

	case CursorKindSeq:
		if len(r.fifo) == 0 {
			return BufferReadResult{NextSeq: tailSeq + 1}
		}
		if cursor.Seq < headSeq {
			dropped = &DroppedRange{FromSeq: cursor.Seq, ToSeq: headSeq - 1}
		}
		startIdx = len(r.fifo)
		for i, c := range r.fifo {
			if c.Seq >= cursor.Seq {
				startIdx = i
				break
			}
		}

	case CursorKindTimeMs:
		startIdx = len(r.fifo)
		for i, c := range r.fifo {
			if c.TMs >= cursor.TimeMs {
				startIdx = i
				break
			}
		}

	case CursorKindTailBytes:
		if len(r.fifo) == 0 {
			return BufferReadResult{NextSeq: tailSeq + 1}
		}
		acc := 0
		startIdx = 0
		for i := len(r.fifo) - 1; i >= 0; i-- {
			acc += len(r.fifo[i].Bytes)
			startIdx = i
			if acc >= cursor.TailBytes {
				break
			}
		}

	default:
		startIdx = 0
	}

	var result []*Chunk
	emitted := 0
	for i := startIdx; i < len(r.fifo); i++ {
		c := r.fifo[i]
		if emitted > 0 && emitted+len(c.Bytes) > maxBytes {
			break
		}
		result = append(result, c)
		emitted += len(c.Bytes)
	}

	next := tailSeq + 1
	if len(result) > 0 {
		next = result[len(result)-1].Seq + 1
	}

	return BufferReadResult{Chunks: result, NextSeq: next, Dropped: dropped}
}

func nowMs() float64 {
	return float64(time.Now().UnixNano()) / 1e6
}
