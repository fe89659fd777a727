package wsutils

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// JSONWriter is the write side of a signaling connection. Broadcast code
// depends on this instead of the concrete websocket so tests can record
// frames without a network.
type JSONWriter interface {
	WriteJSON(val any) error
}

// ThreadSafeWriter serializes writes to a websocket. Gorilla connections
// support one concurrent writer only, while room broadcasts and notifier
// pushes may target the same socket from different goroutines.
type ThreadSafeWriter struct {
	*websocket.Conn
	sync.Mutex
}

func NewThreadSafeWriter(conn *websocket.Conn) *ThreadSafeWriter {
	return &ThreadSafeWriter{
		Conn: conn,
	}
}

func (t *ThreadSafeWriter) WriteJSON(val any) error {
	t.Lock()
	defer t.Unlock()

	_ = t.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.Conn.WriteJSON(val)
}

func (t *ThreadSafeWriter) ReadJSON(val any) error {
	return t.Conn.ReadJSON(val)
}

func (t *ThreadSafeWriter) Close() error {
	return t.Conn.Close()
}

var _ JSONWriter = (*ThreadSafeWriter)(nil)
