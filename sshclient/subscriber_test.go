package sshclient

import (
	"sync"
	"testing"
	"time"
)

// recordingListener collects every ShellEvent delivered to it, safe
// for concurrent use since AddListener invokes OnEvent from a
// background goroutine.
type recordingListener struct {
	mu     sync.Mutex
	events []ShellEvent
}

func (l *recordingListener) OnEvent(e ShellEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingListener) snapshot() []ShellEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ShellEvent, len(l.events))
	copy(out, l.events)
	return out
}

func startWorker(t *testing.T, ring *chunkRing, hub *broadcastHub, listener ShellListener, opts ListenerOptions) *subscriberWorker {
	t.Helper()
	w := newSubscriberWorker(ring, hub, listener, opts)
	go w.run()
	return w
}

func stopWorker(t *testing.T, w *subscriberWorker) {
	t.Helper()
	w.stop()
	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatal("subscriber worker did not stop in time")
	}
}

func TestSubscriberReplaysRingHistoryOnStart(t *testing.T) {
	ring := newChunkRing(DefaultRingBytesCapacity)
	hub := newBroadcastHub()
	ring.append([]byte("one"), StreamStdout)
	ring.append([]byte("two"), StreamStdout)

	listener := &recordingListener{}
	w := startWorker(t, ring, hub, listener, ListenerOptions{Cursor: CursorHead()})
	time.Sleep(20 * time.Millisecond)
	stopWorker(t, w)

	events := listener.snapshot()
	chunkEvents := 0
	for _, e := range events {
		if _, ok := e.(ChunkEvent); ok {
			chunkEvents++
		}
	}
	if chunkEvents != 2 {
		t.Fatalf("expected 2 replayed ChunkEvents, got %d (events=%+v)", chunkEvents, events)
	}
}

func TestSubscriberCoalescesContiguousSameStreamChunks(t *testing.T) {
	ring := newChunkRing(DefaultRingBytesCapacity)
	hub := newBroadcastHub()

	listener := &recordingListener{}
	w := startWorker(t, ring, hub, listener, ListenerOptions{Cursor: CursorLive(), CoalesceMs: 30})

	time.Sleep(5 * time.Millisecond) // let the worker subscribe before we publish
	hub.publish(&Chunk{Seq: 1, Stream: StreamStdout, Bytes: []byte("a")})
	hub.publish(&Chunk{Seq: 2, Stream: StreamStdout, Bytes: []byte("b")})

	time.Sleep(80 * time.Millisecond) // well past the coalescing window
	stopWorker(t, w)

	events := listener.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly one coalesced ChunkEvent, got %d (events=%+v)", len(events), events)
	}
	ce, ok := events[0].(ChunkEvent)
	if !ok {
		t.Fatalf("expected a ChunkEvent, got %T", events[0])
	}
	if string(ce.Bytes) != "ab" {
		t.Errorf("expected coalesced bytes %q, got %q", "ab", ce.Bytes)
	}
	if ce.Seq != 2 {
		t.Errorf("expected coalesced event to carry the last chunk's seq, got %d", ce.Seq)
	}
}

func TestSubscriberFlushesImmediatelyOnStreamSwitch(t *testing.T) {
	ring := newChunkRing(DefaultRingBytesCapacity)
	hub := newBroadcastHub()

	listener := &recordingListener{}
	w := startWorker(t, ring, hub, listener, ListenerOptions{Cursor: CursorLive(), CoalesceMs: 500})

	time.Sleep(5 * time.Millisecond)
	hub.publish(&Chunk{Seq: 1, Stream: StreamStdout, Bytes: []byte("out")})
	hub.publish(&Chunk{Seq: 2, Stream: StreamStderr, Bytes: []byte("err")})
	time.Sleep(20 * time.Millisecond) // far shorter than the 500ms window

	stopWorker(t, w)

	events := listener.snapshot()
	if len(events) < 1 {
		t.Fatalf("expected the stdout chunk to flush immediately on stream switch, got %d events", len(events))
	}
	first, ok := events[0].(ChunkEvent)
	if !ok || first.Stream != StreamStdout || string(first.Bytes) != "out" {
		t.Errorf("expected first flushed event to be the stdout chunk, got %+v", events[0])
	}
}

func TestSubscriberReportsGapOnSeqDiscontinuity(t *testing.T) {
	ring := newChunkRing(DefaultRingBytesCapacity)
	hub := newBroadcastHub()

	listener := &recordingListener{}
	w := startWorker(t, ring, hub, listener, ListenerOptions{Cursor: CursorLive(), CoalesceMs: 10})

	time.Sleep(5 * time.Millisecond)
	hub.publish(&Chunk{Seq: 1, Stream: StreamStdout, Bytes: []byte("a")})
	time.Sleep(20 * time.Millisecond) // flush seq 1 before the gap
	hub.publish(&Chunk{Seq: 5, Stream: StreamStdout, Bytes: []byte("e")})
	time.Sleep(20 * time.Millisecond)

	stopWorker(t, w)

	var gaps []DroppedEvent
	for _, e := range listener.snapshot() {
		if d, ok := e.(DroppedEvent); ok {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) != 1 {
		t.Fatalf("expected exactly one DroppedEvent, got %d", len(gaps))
	}
	if gaps[0].FromSeq != 2 || gaps[0].ToSeq != 4 {
		t.Errorf("expected dropped range [2,4], got [%d,%d]", gaps[0].FromSeq, gaps[0].ToSeq)
	}
}

func TestSubscriberStopIsIdempotent(t *testing.T) {
	ring := newChunkRing(DefaultRingBytesCapacity)
	hub := newBroadcastHub()
	listener := &recordingListener{}
	w := startWorker(t, ring, hub, listener, ListenerOptions{Cursor: CursorHead()})

	w.stop()
	w.stop() // must not panic on a second call
	stopWorker(t, w)
}
