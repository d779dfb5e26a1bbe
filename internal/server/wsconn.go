package server

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxFrameSize      = 64 * 1024
	closeFrameTimeout = time.Second
)

// wsConn presents a WebSocket as a byte stream so the same worker and hub
// serve both transports. Each inbound text frame is handed out in reads of at
// most the caller's buffer size; each Write becomes one text frame.
type wsConn struct {
	conn    *websocket.Conn
	pending []byte
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}
}

func (w *wsConn) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			// gorilla connections are unusable after any read error.
			return 0, fmt.Errorf("%w: %w", io.ErrUnexpectedEOF, err)
		}
		w.pending = data
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConn) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

// Close sends a best-effort close frame and closes the underlying connection.
func (w *wsConn) Close() error {
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeFrameTimeout))
	return w.conn.Close()
}

func (w *wsConn) RemoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}
