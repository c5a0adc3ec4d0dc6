package facade

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agenthub/hub/internal/chat/pty"
)

// terminalClientMessage is the inbound envelope a browser terminal sends:
// either a keystroke/paste payload or a resize request (§4.F, §4.I).
type terminalClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// handleTerminalWS attaches to a running chat's PTY, replays its backlog,
// then streams output both ways until either side disconnects (§4.F).
func (f *Facade) handleTerminalWS(c *gin.Context) {
	chatID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.log.WithError(err).Warn("terminal websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, backlog, err := f.lifecyc.Attach(chatID)
	if err != nil {
		conn.WriteJSON(gin.H{"type": "error", "message": err.Error()})
		return
	}
	defer f.lifecyc.Detach(chatID, ch)

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(backlog)); err != nil {
		return
	}

	done := make(chan struct{})
	go f.terminalReadPump(conn, chatID, done)

	for {
		select {
		case <-done:
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(chunk)); err != nil {
				return
			}
		}
	}
}

func (f *Facade) terminalReadPump(conn *websocket.Conn, chatID string, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg terminalClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "input":
			prompt, submitted, err := f.lifecyc.WriteInput(chatID, []byte(msg.Data))
			if err != nil {
				return
			}
			if submitted && prompt != "" {
				f.archiveAndRecordPrompt(chatID, prompt)
			}
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				_ = f.lifecyc.Resize(chatID, pty.Size{Cols: msg.Cols, Rows: msg.Rows})
			}
		}
	}
}
