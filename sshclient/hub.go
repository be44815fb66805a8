package sshclient

import "sync"

// hubCapacity bounds each subscriber's queue. A subscriber that falls
// behind by more than this many chunks has some dropped; it notices
// the gap itself, by comparing the Seq of the next chunk it actually
// receives against the Seq it last saw (see subscriber.go) — the hub
// itself stays a simple non-blocking fan-out, the way
// ManagedSession.broadcast in the teacher drops to a slow subscriber
// rather than blocking the reader.
const hubCapacity = 1024

// hubSubscription is a single subscriber's live feed.
type hubSubscription struct {
	ch chan *Chunk
}

// broadcastHub is the per-Shell lossy fan-out described in spec.md
// §4.2. Publishing never blocks and never applies backpressure to the
// reader task.
type broadcastHub struct {
	mu     sync.Mutex
	subs   map[*hubSubscription]struct{}
	closed bool
}

func newBroadcastHub() *broadcastHub {
	return &broadcastHub{subs: make(map[*hubSubscription]struct{})}
}

// subscribe registers a new live subscription. Returns nil if the hub
// is already closed.
func (h *broadcastHub) subscribe() *hubSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	sub := &hubSubscription{ch: make(chan *Chunk, hubCapacity)}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *broadcastHub) unsubscribe(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// publish fans c out to every live subscriber. A subscriber whose
// queue is full is dropped for this chunk rather than blocking the
// reader task; it recovers by noticing the seq discontinuity on its
// next successful receive.
func (h *broadcastHub) publish(c *Chunk) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- c:
		default:
			// subscriber lagged; chunk is dropped for it
		}
	}
}

// close tears down the hub: every subscriber channel is closed so
// blocked receivers wake up and exit, and further subscribe/publish
// calls are no-ops.
func (h *broadcastHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}
