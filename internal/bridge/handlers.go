package bridge

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/EthanShoeDev/fressh/sshclient"
)

// Handlers wires the Registry to gin routes. It plays the role the
// teacher's TerminalHandler/BaseHandler pair played for PTY sessions.
type Handlers struct {
	registry *Registry
}

func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

type connectionView struct {
	ID string `json:"id"`
	sshclient.SSHConnectionInfo
}

// HandleConnect opens a new Connection and registers it.
func (h *Handlers) HandleConnect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	id, conn, err := h.registry.Connect(c.Request.Context(), req, nil)
	if err != nil {
		status := http.StatusBadGateway
		if kind, ok := sshclient.KindOf(err); ok && kind == sshclient.ErrAuth {
			status = http.StatusUnauthorized
		}
		sendError(c, status, err)
		return
	}

	c.JSON(http.StatusCreated, connectionView{ID: id, SSHConnectionInfo: conn.Info()})
}

// HandleGetConnection returns a connection's info snapshot.
func (h *Handlers) HandleGetConnection(c *gin.Context) {
	id, ok := getPathParam(c, "id")
	if !ok {
		return
	}
	conn, ok := h.registry.Get(id)
	if !ok {
		sendError(c, http.StatusNotFound, errUnknownConnection(id))
		return
	}
	c.JSON(http.StatusOK, connectionView{ID: id, SSHConnectionInfo: conn.Info()})
}

// HandleDisconnect tears a connection down and forgets it.
func (h *Handlers) HandleDisconnect(c *gin.Context) {
	id, ok := getPathParam(c, "id")
	if !ok {
		return
	}
	if _, ok := h.registry.Get(id); !ok {
		sendError(c, http.StatusNotFound, errUnknownConnection(id))
		return
	}
	if err := h.registry.Disconnect(id); err != nil {
		sendError(c, http.StatusBadGateway, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type startShellRequest struct {
	Cols uint32 `json:"cols"`
	Rows uint32 `json:"rows"`
	Term string `json:"term"`
}

type shellView struct {
	sshclient.ShellSessionInfo
}

// HandleStartShell opens a pty-backed shell on an existing connection.
func (h *Handlers) HandleStartShell(c *gin.Context) {
	id, ok := getPathParam(c, "id")
	if !ok {
		return
	}
	conn, ok := h.registry.Get(id)
	if !ok {
		sendError(c, http.StatusNotFound, errUnknownConnection(id))
		return
	}

	var req startShellRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	shell, err := conn.StartShell(c.Request.Context(), sshclient.StartShellOptions{
		Term:         parseTermName(req.Term),
		TerminalSize: sshclient.TerminalSize{Cols: req.Cols, Rows: req.Rows},
	})
	if err != nil {
		sendError(c, http.StatusBadGateway, err)
		return
	}

	c.JSON(http.StatusCreated, shellView{ShellSessionInfo: shell.Info()})
}

func parseTermName(name string) sshclient.TerminalType {
	switch name {
	case "vt100":
		return sshclient.TerminalVt100
	case "vt102":
		return sshclient.TerminalVt102
	case "vt220":
		return sshclient.TerminalVt220
	case "ansi":
		return sshclient.TerminalAnsi
	case "xterm":
		return sshclient.TerminalXterm
	case "vanilla":
		return sshclient.TerminalVanilla
	default:
		return sshclient.TerminalXterm256
	}
}

type sendDataRequest struct {
	Data string `json:"data" binding:"required"`
}

// HandleSendData writes bytes to a shell's stdin.
func (h *Handlers) HandleSendData(c *gin.Context) {
	shell, ok := h.findShell(c)
	if !ok {
		return
	}
	var req sendDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}
	if err := shell.SendData([]byte(req.Data)); err != nil {
		sendError(c, http.StatusBadGateway, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleCloseShell closes a shell.
func (h *Handlers) HandleCloseShell(c *gin.Context) {
	shell, ok := h.findShell(c)
	if !ok {
		return
	}
	_ = shell.Close()
	c.Status(http.StatusNoContent)
}

// findShell resolves :id/:channelId into a live Shell, writing the
// appropriate 404 if either half doesn't exist.
func (h *Handlers) findShell(c *gin.Context) (*sshclient.Shell, bool) {
	id, ok := getPathParam(c, "id")
	if !ok {
		return nil, false
	}
	channelIDStr, ok := getPathParam(c, "channelId")
	if !ok {
		return nil, false
	}
	channelID64, err := strconv.ParseUint(channelIDStr, 10, 32)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return nil, false
	}

	conn, ok := h.registry.Get(id)
	if !ok {
		sendError(c, http.StatusNotFound, errUnknownConnection(id))
		return nil, false
	}

	shell, ok := conn.Shell(uint32(channelID64))
	if !ok {
		sendError(c, http.StatusNotFound, errUnknownShell(channelID64))
		return nil, false
	}
	return shell, true
}

type unknownConnectionError struct{ id string }

func (e *unknownConnectionError) Error() string { return "unknown connection: " + e.id }

func errUnknownConnection(id string) error { return &unknownConnectionError{id: id} }

type unknownShellError struct{ channelID uint64 }

func (e *unknownShellError) Error() string {
	return "unknown shell channel: " + strconv.FormatUint(e.channelID, 10)
}

func errUnknownShell(channelID uint64) error { return &unknownShellError{channelID: channelID} }
