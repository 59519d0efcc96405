package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientConn is the client leg of a call.
type ClientConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteText(b []byte) error
	// Interrupt makes a blocked ReadMessage return.
	Interrupt()
	// Close sends a close frame with code and reason and releases the
	// connection.
	Close(code int, reason string) error
}

// WSConn adapts a gorilla websocket connection. Writes are serialized and
// bounded by the write timeout.
type WSConn struct {
	c            *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func NewWSConn(c *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &WSConn{c: c, writeTimeout: writeTimeout}
}

func (w *WSConn) ReadMessage() (int, []byte, error) {
	return w.c.ReadMessage()
}

func (w *WSConn) WriteText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *WSConn) Interrupt() {
	_ = w.c.SetReadDeadline(time.Now())
}

func (w *WSConn) Close(code int, reason string) error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.writeTimeout))
		err = w.c.Close()
	})
	return err
}
