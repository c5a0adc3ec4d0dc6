package facade

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agenthub/hub/internal/store"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventsWS streams a full-state snapshot frame followed by every
// subsequent state change event until the client disconnects (§4.I "one
// snapshot then a live stream").
func (f *Facade) handleEventsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.log.WithError(err).Warn("events websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := f.bus.Subscribe()
	defer sub.Close()

	var snapshot store.Document
	f.st.View(func(doc *store.Document) { snapshot = *doc })
	if err := writeJSONFrame(conn, eventbusFrame{Type: "snapshot", Payload: snapshot}); err != nil {
		return
	}

	done := make(chan struct{})
	go readPumpDiscard(conn, done)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case evt, ok := <-sub.Events():
			if !ok || evt == nil {
				return
			}
			if err := writeJSONFrame(conn, eventbusFrame{Type: string(evt.Type), Payload: evt.Payload}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type eventbusFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func writeJSONFrame(conn *websocket.Conn, frame eventbusFrame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readPumpDiscard drains and discards inbound frames so control frames
// (pong, close) are processed, closing done when the connection drops.
func readPumpDiscard(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
