package feed

import (
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport sends each frame as one text message.
// Only the session's writer goroutine calls WriteFrame.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func newWSTransport(conn *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) WriteFrame(frame string) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (t *wsTransport) Close() error      { return t.conn.Close() }
func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
