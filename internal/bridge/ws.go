package bridge

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/EthanShoeDev/fressh/sshclient"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // demo bridge; a real deployment should restrict this
	},
}

// wsMessage is the wire protocol between a browser-side terminal and
// this bridge. Type "output"/"dropped" flow server->client; "input"
// flows client->server.
type wsMessage struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Stream  string `json:"stream,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
	FromSeq uint64 `json:"fromSeq,omitempty"`
	ToSeq   uint64 `json:"toSeq,omitempty"`
}

// HandleShellStream upgrades to a WebSocket, replays and follows a
// shell's output via AddListener, and applies inbound "input"
// messages to the shell's stdin.
func (h *Handlers) HandleShellStream(c *gin.Context) {
	shell, ok := h.findShell(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("bridge: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	cursor := sshclient.CursorHead()
	if fromSeq := c.Query("fromSeq"); fromSeq != "" {
		if v, err := strconv.ParseUint(fromSeq, 10, 64); err == nil {
			cursor = sshclient.CursorAtSeq(v)
		}
	}

	var writeMu sync.Mutex
	writeJSON := func(msg wsMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	listenerID := shell.AddListener(sshclient.ShellListenerFunc(func(event sshclient.ShellEvent) {
		switch e := event.(type) {
		case sshclient.ChunkEvent:
			_ = writeJSON(wsMessage{Type: "output", Data: string(e.Bytes), Stream: e.Stream.String(), Seq: e.Seq})
		case sshclient.DroppedEvent:
			_ = writeJSON(wsMessage{Type: "dropped", FromSeq: e.FromSeq, ToSeq: e.ToSeq})
		}
	}), sshclient.ListenerOptions{Cursor: cursor})
	defer shell.RemoveListener(listenerID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logrus.Warnf("bridge: invalid websocket message: %v", err)
			continue
		}
		if msg.Type == "input" {
			if err := shell.SendData([]byte(msg.Data)); err != nil {
				logrus.Warnf("bridge: failed to write shell input: %v", err)
			}
		}
	}
}
