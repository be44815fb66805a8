// Package fakesshd is an in-process SSH server used as a test fixture
// standing in for a real sshd: it accepts exactly the auth spec.md's
// test scenarios need and backs every shell channel with a real
// creack/pty-spawned process, the way the terminal handler teacher
// package does for its own sessions.
package fakesshd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Server is a minimal sshd: one listener, each accepted connection
// served concurrently on its own goroutine, password or
// any-public-key auth, and pty-req/shell-backed session channels
// running /bin/sh.
type Server struct {
	Addr string // host:port once Start has returned

	listener net.Listener
	config   *ssh.ServerConfig

	Username string
	Password string // empty means any public key is accepted instead

	wg sync.WaitGroup
}

// New builds a Server listening on an ephemeral loopback port. Call
// Start to begin accepting connections and Close to tear it down.
func New(username, password string) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		Addr:     ln.Addr().String(),
		listener: ln,
		Username: username,
		Password: password,
	}

	cfg := &ssh.ServerConfig{}
	if password != "" {
		cfg.PasswordCallback = func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == username && string(pass) == password {
				return nil, nil
			}
			return nil, errAuthRejected
		}
	} else {
		cfg.PublicKeyCallback = func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if c.User() == username {
				return nil, nil
			}
			return nil, errAuthRejected
		}
	}
	cfg.AddHostKey(signer)
	s.config = cfg

	return s, nil
}

var errAuthRejected = &authError{}

type authError struct{}

func (*authError) Error() string { return "fakesshd: authentication rejected" }

// Start begins accepting connections in the background until Close is
// called.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn)
		}
	}()
}

// Close stops accepting new connections. It does not forcibly tear
// down connections already in flight.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Wait blocks until the accept loop has exited (i.e. after Close).
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleConn(conn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go handleSession(ch, requests)
	}
}

// handleSession services one session channel: it waits for pty-req
// and shell requests, then pumps a real pty-backed shell process the
// same way the terminal handler teacher package does.
func handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	var (
		cols, rows uint32 = 80, 24
		ptmxStarted        = false
	)

	for req := range requests {
		switch req.Type {
		case "pty-req":
			cols, rows = parsePtyReq(req.Payload)
			if req.WantReply {
				_ = req.Reply(true, nil)
			}

		case "shell":
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
			if ptmxStarted {
				continue
			}
			ptmxStarted = true
			runShell(ch, cols, rows)
			return

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func runShell(ch ssh.Channel, cols, rows uint32) {
	cmd := exec.Command("/bin/sh")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		logrus.Errorf("fakesshd: failed to start pty shell: %v", err)
		return
	}
	defer ptmx.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(ptmx, ch)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(ch, ptmx)
	}()
	wg.Wait()
	_ = cmd.Wait()
}

// parsePtyReq decodes just the size fields of a pty-req payload; the
// terminal name and the encoded modes string aren't needed by this
// fixture.
func parsePtyReq(payload []byte) (cols, rows uint32) {
	if len(payload) < 4 {
		return 80, 24
	}
	termLen := binary.BigEndian.Uint32(payload)
	off := 4 + int(termLen)
	if off+8 > len(payload) {
		return 80, 24
	}
	cols = binary.BigEndian.Uint32(payload[off : off+4])
	rows = binary.BigEndian.Uint32(payload[off+4 : off+8])
	return cols, rows
}
