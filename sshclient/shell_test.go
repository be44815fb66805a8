package sshclient

import (
	"io"
	"sync"
	"testing"
)

// fakeChannel is a minimal ssh.Channel stand-in whose Read calls block
// until Close, so Shell's reader goroutines behave the way they would
// against a real session channel without needing a network round trip.
type fakeChannel struct {
	closeOnce sync.Once
	closeCh   chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{closeCh: make(chan struct{})}
}

func (c *fakeChannel) Read(p []byte) (int, error) {
	<-c.closeCh
	return 0, io.EOF
}
func (c *fakeChannel) Write(p []byte) (int, error) { return len(p), nil }
func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}
func (c *fakeChannel) CloseWrite() error { return nil }
func (c *fakeChannel) SendRequest(name string, wantReply bool, payload []byte) (bool, error) {
	return true, nil
}
func (c *fakeChannel) Stderr() io.ReadWriter { return fakeStderr{c} }

type fakeStderr struct{ c *fakeChannel }

func (f fakeStderr) Read(p []byte) (int, error) {
	<-f.c.closeCh
	return 0, io.EOF
}
func (f fakeStderr) Write(p []byte) (int, error) { return len(p), nil }

func TestShellStateMachineIsOneWay(t *testing.T) {
	ch := newFakeChannel()
	shell := newShell(1, ch, StartShellOptions{}, nil)

	if got := shell.State(); got != ShellOpening {
		t.Fatalf("expected a new shell to start Opening, got %v", got)
	}

	// Connection.StartShell drives these transitions as the pty-req and
	// shell requests succeed; exercised directly here since this test
	// has no real transport to negotiate over.
	shell.setState(ShellPtyRequested)
	if got := shell.State(); got != ShellPtyRequested {
		t.Fatalf("expected PtyRequested, got %v", got)
	}

	shell.setState(ShellShellRequested)
	if got := shell.State(); got != ShellShellRequested {
		t.Fatalf("expected ShellRequested, got %v", got)
	}

	shell.setState(ShellActive)
	shell.start()
	if got := shell.State(); got != ShellActive {
		t.Fatalf("expected Active, got %v", got)
	}

	if err := shell.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := shell.State(); got != ShellClosed {
		t.Fatalf("expected Closed after Close, got %v", got)
	}
}

func TestShellStateStringCoversEveryState(t *testing.T) {
	cases := map[ShellState]string{
		ShellOpening:        "opening",
		ShellPtyRequested:   "pty_requested",
		ShellShellRequested: "shell_requested",
		ShellActive:         "active",
		ShellClosing:        "closing",
		ShellClosed:         "closed",
		ShellState(99):      "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("ShellState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
