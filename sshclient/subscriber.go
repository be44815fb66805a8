package sshclient

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// accumulator is the in-flight coalesced chunk a subscriber worker is
// building up before it flushes as one ChunkEvent.
type accumulator struct {
	stream  StreamKind
	bytes   []byte
	lastSeq uint64
	lastT   float64
}

// subscriberWorker implements the replay-then-follow-live algorithm of
// spec.md §4.4: one per listener, started by Shell.AddListener and
// torn down by RemoveListener or hub closure.
type subscriberWorker struct {
	ring           *chunkRing
	hub            *broadcastHub
	listener       ShellListener
	cursor         Cursor
	coalesceWindow time.Duration

	cancel chan struct{}
	done   chan struct{}
}

func newSubscriberWorker(ring *chunkRing, hub *broadcastHub, listener ShellListener, opts ListenerOptions) *subscriberWorker {
	ms := opts.CoalesceMs
	if ms <= 0 {
		ms = DefaultCoalesceMs
	}
	return &subscriberWorker{
		ring:           ring,
		hub:            hub,
		listener:       listener,
		cursor:         opts.Cursor,
		coalesceWindow: time.Duration(ms) * time.Millisecond,
		cancel:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// stop cancels the worker and does not wait for it to finish; callers
// that need to observe completion should select on done.
func (w *subscriberWorker) stop() {
	select {
	case <-w.cancel:
	default:
		close(w.cancel)
	}
}

func (w *subscriberWorker) emit(event ShellEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("sshclient: listener panic recovered: %v", r)
		}
	}()
	w.listener.OnEvent(event)
}

func stopAndDrain(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// run executes the full replay-then-follow-live algorithm. It must be
// started in its own goroutine; it returns once the hub closes, the
// worker is stopped, or the listener channel reports an unrecoverable
// state.
func (w *subscriberWorker) run() {
	defer close(w.done)

	// Subscribe before snapshotting the ring so no live chunk appended
	// between the two can be missed; any chunk the live feed hands us
	// that the snapshot already covered is filtered out below by
	// comparing against lastSeqSeen.
	sub := w.hub.subscribe()
	if sub != nil {
		defer w.hub.unsubscribe(sub)
	}

	snapshot := w.ring.readBuffer(w.cursor, math.MaxInt)
	if snapshot.Dropped != nil {
		w.emit(DroppedEvent{FromSeq: snapshot.Dropped.FromSeq, ToSeq: snapshot.Dropped.ToSeq})
	}
	for _, c := range snapshot.Chunks {
		w.emit(ChunkEvent{Seq: c.Seq, TMs: c.TMs, Stream: c.Stream, Bytes: c.Bytes})
	}

	if sub == nil {
		// hub already closed: history was replayed above, nothing
		// left to follow live.
		return
	}

	lastSeqSeen := snapshot.NextSeq - 1

	var acc *accumulator
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		if acc == nil {
			return
		}
		w.emit(ChunkEvent{Seq: acc.lastSeq, TMs: acc.lastT, Stream: acc.stream, Bytes: acc.bytes})
		acc = nil
		stopAndDrain(timer)
	}

	startAccumulator := func(c *Chunk) {
		acc = &accumulator{
			stream:  c.Stream,
			bytes:   append([]byte(nil), c.Bytes...),
			lastSeq: c.Seq,
			lastT:   c.TMs,
		}
		timer.Reset(w.coalesceWindow)
	}

	for {
		var timerC <-chan time.Time
		if acc != nil {
			timerC = timer.C
		}

		select {
		case <-w.cancel:
			flush()
			return

		case <-timerC:
			flush()

		case c, ok := <-sub.ch:
			if !ok {
				flush()
				return
			}
			if c.Seq <= lastSeqSeen {
				// already delivered during replay; the hub
				// subscription was opened before the snapshot to
				// avoid missing live chunks, which can hand us a
				// duplicate of the snapshot's tail.
				continue
			}

			if c.Seq != lastSeqSeen+1 {
				gapFrom := lastSeqSeen + 1
				toSeq := c.Seq - 1
				flush()
				if gapFrom <= toSeq {
					w.emit(DroppedEvent{FromSeq: gapFrom, ToSeq: toSeq})
				}
			}
			lastSeqSeen = c.Seq

			if acc != nil && c.Stream == acc.stream {
				acc.bytes = append(acc.bytes, c.Bytes...)
				acc.lastSeq = c.Seq
				acc.lastT = c.TMs
				// deadline is not extended: the window bounds
				// worst-case latency, not idle time.
			} else {
				flush()
				startAccumulator(c)
			}
		}
	}
}
