package realtime

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

var errSendBufferFull = errors.New("session send buffer full")

// wsConn adapts a websocket connection to the registry's Conn. All frames
// funnel through a single write pump goroutine, which keeps a session's
// outgoing stream in submission order and serializes pings with payload
// writes.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues a frame for delivery. It fails fast instead of blocking: a
// full buffer means the peer is not draining, and presence traffic is not
// worth the backpressure.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return net.ErrClosed
	default:
		return errSendBufferFull
	}
}

// Close signals the write pump to finish. Frames already queued are
// flushed before the close frame goes out. Safe to call more than once.
func (c *wsConn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Drain whatever was queued before the close signal.
			for {
				select {
				case payload := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage, nil)
					return
				}
			}
		}
	}
}
