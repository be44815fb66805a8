// Package bridge adapts the sshclient core to an HTTP+WebSocket host
// process, the way the terminal handler teacher package exposed its
// PTY sessions over gin and gorilla/websocket. It is not part of the
// embeddable core (spec.md §1 excludes the host-process callback
// transport); it exists to demonstrate SPEC_FULL.md's domain-stack
// wiring end to end.
package bridge

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/EthanShoeDev/fressh/sshclient"
)

// Registry tracks every Connection this host process has opened,
// keyed by a server-generated id rather than the connection's own
// identity string so a host can hold several connections to the same
// address.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*sshclient.Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]*sshclient.Connection)}
}

// ConnectRequest is the JSON body accepted by POST /connections.
type ConnectRequest struct {
	Host     string `json:"host" binding:"required"`
	Port     uint16 `json:"port" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
	KeyPEM   string `json:"keyPem"`
}

func (r ConnectRequest) toSecurity() sshclient.Security {
	if r.KeyPEM != "" {
		return sshclient.KeyAuth(r.KeyPEM)
	}
	return sshclient.PasswordAuth(r.Password)
}

// Connect dials a new Connection and registers it under a fresh id.
func (reg *Registry) Connect(ctx context.Context, req ConnectRequest, onProgress sshclient.ProgressCallback) (string, *sshclient.Connection, error) {
	conn, err := sshclient.Connect(ctx, sshclient.ConnectOptions{
		ConnectionDetails: sshclient.ConnectionDetails{
			Host:     req.Host,
			Port:     req.Port,
			Username: req.Username,
			Security: req.toSecurity(),
		},
		OnProgress:     onProgress,
		OnDisconnected: sshclient.DisconnectedCallbackFunc(func(string) {}),
	})
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	reg.mu.Lock()
	reg.connections[id] = conn
	reg.mu.Unlock()
	return id, conn, nil
}

// Get looks up a registered connection by id.
func (reg *Registry) Get(id string) (*sshclient.Connection, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	conn, ok := reg.connections[id]
	return conn, ok
}

// Forget removes a connection from the registry without disconnecting
// it; callers disconnect explicitly first.
func (reg *Registry) Forget(id string) {
	reg.mu.Lock()
	delete(reg.connections, id)
	reg.mu.Unlock()
}

// Disconnect disconnects and forgets the connection registered under id.
func (reg *Registry) Disconnect(id string) error {
	reg.mu.Lock()
	conn, ok := reg.connections[id]
	delete(reg.connections, id)
	reg.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Disconnect()
}
