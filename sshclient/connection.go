package sshclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"
)

// Connection is one SSH transport to a single host (spec.md §3, §4.6).
// It strongly owns every Shell opened on it; Shells only ever see
// their parent through a weak.Pointer (see shell.go).
type Connection struct {
	details  ConnectionDetails
	identity string

	createdAtMs          float64
	tcpEstablishedMs     float64
	handshakeCompletedMs float64

	conn   net.Conn
	client *ssh.Client

	shellsMu      sync.Mutex
	shells        map[uint32]*Shell
	nextChannelID atomic.Uint32

	onDisconnected DisconnectedCallback

	stateMu sync.Mutex
	state   ConnectionState

	closeOnce sync.Once
}

// Connect dials details.Host:Port, performs the SSH handshake and
// authentication, and returns a ready Connection. The host key is
// never verified (spec.md §9 — this core has no host-key trust
// store; a caller wanting verification wraps this in its own
// ssh.HostKeyCallback-capable layer).
func Connect(ctx context.Context, opts ConnectOptions) (*Connection, error) {
	details := opts.ConnectionDetails
	addr := fmt.Sprintf("%s:%d", details.Host, details.Port)

	c := &Connection{
		details:        details,
		shells:         make(map[uint32]*Shell),
		onDisconnected: opts.OnDisconnected,
		state:          ConnTCPConnecting,
	}
	c.createdAtMs = nowMs()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(ConnFailed)
		return nil, newError(ErrIO, "dial "+addr, err)
	}
	c.conn = conn
	c.tcpEstablishedMs = nowMs()
	c.setState(ConnTCPConnected)
	if opts.OnProgress != nil {
		opts.OnProgress.OnProgress(ProgressTCPConnected)
	}

	authMethods, err := buildAuthMethods(details.Security)
	if err != nil {
		_ = conn.Close()
		c.setState(ConnFailed)
		return nil, err
	}

	c.setState(ConnHandshaking)
	cfg := &ssh.ClientConfig{
		User:            details.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	c.setState(ConnAuthenticating)
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		c.setState(ConnFailed)
		return nil, classifyHandshakeErr(err)
	}
	c.handshakeCompletedMs = nowMs()
	if opts.OnProgress != nil {
		opts.OnProgress.OnProgress(ProgressSSHHandshake)
	}

	c.client = ssh.NewClient(sshConn, chans, reqs)

	localPort := uint16(0)
	if tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		localPort = uint16(tcpAddr.Port)
	}
	c.identity = fmt.Sprintf("%s@%s:%d:%d", details.Username, details.Host, details.Port, localPort)

	c.setState(ConnReady)
	return c, nil
}

func (c *Connection) setState(st ConnectionState) {
	c.stateMu.Lock()
	c.state = st
	c.stateMu.Unlock()
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Info returns a read-only snapshot of the connection.
func (c *Connection) Info() SSHConnectionInfo {
	c.shellsMu.Lock()
	n := len(c.shells)
	c.shellsMu.Unlock()
	return SSHConnectionInfo{
		Identity:             c.identity,
		CreatedAtMs:          c.createdAtMs,
		TCPEstablishedAtMs:   c.tcpEstablishedMs,
		HandshakeCompletedMs: c.handshakeCompletedMs,
		ShellCount:           n,
	}
}

// StartShell opens a new session channel, requests a pty and a shell
// on it, and returns the running Shell. The channel id is assigned
// locally by this Connection (a monotonic counter) since
// golang.org/x/crypto/ssh's client API never surfaces the wire
// channel number it negotiated.
func (c *Connection) StartShell(ctx context.Context, opts StartShellOptions) (*Shell, error) {
	if c.State() != ConnReady {
		return nil, newError(ErrDisconnected, "connection is not ready", nil)
	}

	sch, reqs, err := c.client.OpenChannel("session", nil)
	if err != nil {
		return nil, newError(ErrTransport, "open session channel", err)
	}
	go ssh.DiscardRequests(reqs)

	// The shell is registered under its local channel id as soon as the
	// transport channel exists, so a concurrent Connection.Shell lookup
	// can observe it moving through Opening, PtyRequested and
	// ShellRequested rather than only ever seeing Active or Closed.
	channelID := c.nextChannelID.Add(1)
	shell := newShell(channelID, sch, opts, c)

	c.shellsMu.Lock()
	c.shells[channelID] = shell
	c.shellsMu.Unlock()

	size := opts.TerminalSize
	if size.Cols == 0 {
		size.Cols = 80
	}
	if size.Rows == 0 {
		size.Rows = 24
	}
	modes := mergeTerminalModes(opts.TerminalModes)
	payload := encodePtyRequest(opts.Term.wireName(), size.Cols, size.Rows, opts.TerminalPixelSize.Width, opts.TerminalPixelSize.Height, modes)

	shell.setState(ShellPtyRequested)
	ok, err := sch.SendRequest("pty-req", true, payload)
	if err != nil {
		c.removeShell(channelID)
		_ = sch.Close()
		return nil, newError(ErrTransport, "pty-req", err)
	}
	if !ok {
		c.removeShell(channelID)
		_ = sch.Close()
		return nil, newError(ErrTransport, "pty-req rejected by remote", nil)
	}

	shell.setState(ShellShellRequested)
	ok, err = sch.SendRequest("shell", true, nil)
	if err != nil {
		c.removeShell(channelID)
		_ = sch.Close()
		return nil, newError(ErrTransport, "shell request", err)
	}
	if !ok {
		c.removeShell(channelID)
		_ = sch.Close()
		return nil, newError(ErrTransport, "shell request rejected by remote", nil)
	}

	shell.setState(ShellActive)
	shell.start()
	return shell, nil
}

// Shell looks up a still-open shell by the local channel id StartShell
// returned. Returns false once the shell has closed and deregistered
// itself.
func (c *Connection) Shell(channelID uint32) (*Shell, bool) {
	c.shellsMu.Lock()
	defer c.shellsMu.Unlock()
	sh, ok := c.shells[channelID]
	return sh, ok
}

func (c *Connection) removeShell(channelID uint32) {
	c.shellsMu.Lock()
	delete(c.shells, channelID)
	c.shellsMu.Unlock()
}

// Disconnect closes every open Shell, then tears down the transport.
// golang.org/x/crypto/ssh does not expose a way to send a custom
// SSH_MSG_DISCONNECT reason string through its public client API, so
// the closest available operation — closing the underlying
// connection — stands in for the "bye" application disconnect the
// original implementation sent explicitly. Idempotent.
func (c *Connection) Disconnect() error {
	var outErr error
	c.closeOnce.Do(func() {
		c.setState(ConnDisconnecting)

		c.shellsMu.Lock()
		shells := make([]*Shell, 0, len(c.shells))
		for _, sh := range c.shells {
			shells = append(shells, sh)
		}
		c.shellsMu.Unlock()

		var wg sync.WaitGroup
		for _, sh := range shells {
			wg.Add(1)
			go func(sh *Shell) {
				defer wg.Done()
				_ = sh.Close()
			}(sh)
		}
		wg.Wait()

		if c.client != nil {
			if err := c.client.Close(); err != nil {
				outErr = newError(ErrTransport, "disconnect", err)
			}
		}

		c.setState(ConnClosed)
		if c.onDisconnected != nil {
			c.onDisconnected.OnDisconnected(c.identity)
		}
	})
	return outErr
}
