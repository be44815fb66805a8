package sshclient

import (
	"io"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Shell is one interactive pty-backed session multiplexed over a
// Connection's transport (spec.md §4.5). Output from the remote side
// is buffered in a chunkRing and fanned out through a broadcastHub to
// any number of listeners registered with AddListener.
//
// Connection strongly owns its Shells; a Shell only holds a weak
// back-reference to its parent so the pair can't form a retain cycle.
// Go's garbage collector already traces through ordinary cycles, so
// this isn't strictly required for memory safety the way it would be
// under reference counting — it's kept anyway so a Shell can never
// resurrect or outlive a Connection that has already removed it, and
// so Close doesn't have to worry about ordering against Connection's
// own teardown.
type Shell struct {
	channelID    uint32
	createdAtMs  float64
	term         TerminalType
	terminalSize TerminalSize

	ch      ssh.Channel
	writeMu sync.Mutex

	ring *chunkRing
	hub  *broadcastHub

	listenersMu    sync.Mutex
	listeners      map[uint64]*subscriberWorker
	nextListenerID atomic.Uint64

	onClosed ShellClosedCallback
	parent   weak.Pointer[Connection]

	stateMu sync.Mutex
	state   ShellState

	closeOnce sync.Once
}

func newShell(channelID uint32, ch ssh.Channel, opts StartShellOptions, parent *Connection) *Shell {
	size := opts.TerminalSize
	if size.Cols == 0 {
		size.Cols = 80
	}
	if size.Rows == 0 {
		size.Rows = 24
	}
	return &Shell{
		channelID:    channelID,
		createdAtMs:  nowMs(),
		term:         opts.Term,
		terminalSize: size,
		ch:           ch,
		ring:         newChunkRing(DefaultRingBytesCapacity),
		hub:          newBroadcastHub(),
		listeners:    make(map[uint64]*subscriberWorker),
		onClosed:     opts.OnClosed,
		parent:       weak.Make(parent),
		state:        ShellOpening,
	}
}

// start launches the stdout and stderr reader goroutines. It must be
// called exactly once, after the pty-req/shell requests have both
// succeeded.
func (s *Shell) start() {
	var wg sync.WaitGroup
	wg.Add(2)
	go s.readLoop(&wg, s.ch, StreamStdout)
	go s.readLoop(&wg, s.ch.Stderr(), StreamStderr)
	go func() {
		wg.Wait()
		s.transitionClosed()
	}()
}

// readLoop pumps one half of the channel (stdout or the extended-data
// stderr stream) into the ring and hub until it hits EOF or the
// channel is closed out from under it. x/crypto/ssh's Channel exposes
// stdout and stderr as two separate io.Readers rather than a single
// multiplexed message loop, so each gets its own goroutine; both feed
// the same ring so replay sees them interleaved by arrival order.
func (s *Shell) readLoop(wg *sync.WaitGroup, r io.Reader, stream StreamKind) {
	defer wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			logrus.Errorf("sshclient: shell %d %s reader panic recovered: %v", s.channelID, stream, rec)
		}
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunks := s.ring.append(buf[:n], stream)
			for _, c := range chunks {
				s.hub.publish(c)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Shell) setState(st ShellState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// State returns the shell's current lifecycle state.
func (s *Shell) State() ShellState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Info returns a read-only snapshot of the session.
func (s *Shell) Info() ShellSessionInfo {
	return ShellSessionInfo{
		ChannelID:    s.channelID,
		CreatedAtMs:  s.createdAtMs,
		Term:         s.term,
		TerminalSize: s.terminalSize,
		State:        s.State(),
	}
}

// SendData writes raw bytes to the remote pty's stdin.
func (s *Shell) SendData(data []byte) error {
	if s.State() == ShellClosed {
		return newError(ErrDisconnected, "shell already closed", nil)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.ch.Write(data); err != nil {
		return newError(ErrTransport, "write to shell channel", err)
	}
	return nil
}

// ReadBuffer is a pure snapshot read of the chunk ring; it never
// blocks and never registers a live subscription.
func (s *Shell) ReadBuffer(cursor Cursor, maxBytes int) BufferReadResult {
	return s.ring.readBuffer(cursor, maxBytes)
}

// BufferStats reports the ring's current byte accounting.
func (s *Shell) BufferStats() BufferStats { return s.ring.stats() }

// CurrentSeq reports the sequence number of the most recently
// buffered chunk (0 before any output); a CursorLive subscriber
// starts following from CurrentSeq()+1.
func (s *Shell) CurrentSeq() uint64 { return s.ring.currentSeq() }

// AddListener starts a subscriber worker that replays ring history
// from cursor and then follows the live broadcast, coalescing
// contiguous same-stream output per opts.CoalesceMs. Returns a
// listener id usable with RemoveListener; ids are assigned
// monotonically starting at 1.
func (s *Shell) AddListener(listener ShellListener, opts ListenerOptions) uint64 {
	id := s.nextListenerID.Add(1)
	worker := newSubscriberWorker(s.ring, s.hub, listener, opts)

	s.listenersMu.Lock()
	s.listeners[id] = worker
	s.listenersMu.Unlock()

	go worker.run()
	return id
}

// RemoveListener stops and forgets the subscriber worker registered
// under id. Unknown ids are a silent no-op.
func (s *Shell) RemoveListener(id uint64) {
	s.listenersMu.Lock()
	worker, ok := s.listeners[id]
	if ok {
		delete(s.listeners, id)
	}
	s.listenersMu.Unlock()
	if ok {
		worker.stop()
	}
}

// Close tears the shell down: the underlying channel is closed
// (unblocking the reader goroutines), every subscriber worker is
// flushed and finished via hub closure, the shell is removed from its
// parent Connection's table, and OnClosed fires. Idempotent —
// whichever of an explicit Close or the readers observing EOF gets
// there first wins; the other is a no-op.
func (s *Shell) Close() error {
	s.transitionClosed()
	return nil
}

func (s *Shell) transitionClosed() {
	s.closeOnce.Do(func() {
		s.setState(ShellClosing)
		_ = s.ch.Close()
		s.hub.close()
		s.setState(ShellClosed)

		if conn := s.parent.Value(); conn != nil {
			conn.removeShell(s.channelID)
		}
		if s.onClosed != nil {
			s.onClosed.OnShellClosed(s.channelID)
		}
	})
}
