package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 30 * time.Second
)

// newUpgrader accepts same-origin requests, requests without an Origin
// header, and the configured frontend origins.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			for _, o := range allowedOrigins {
				if strings.EqualFold(strings.TrimSpace(o), origin) {
					return true
				}
			}
			return false
		},
	}
}

// wsConn owns the write side of a connection. Every frame goes through a
// single writer goroutine; senders give up once the connection is done.
type wsConn struct {
	conn *websocket.Conn
	out  chan any
	done chan struct{}
	once sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, out: make(chan any, 32), done: make(chan struct{})}
}

func (c *wsConn) send(v any) bool {
	select {
	case c.out <- v:
		return true
	case <-c.done:
		return false
	}
}

// close stops the writer, which then closes the socket. Safe to call
// repeatedly.
func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop writes queued messages and keeps the connection alive with
// pings until close is called or a write fails.
func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()
	// A failed write ends the connection so senders stop queueing.
	defer c.close()
	for {
		select {
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case v := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued without waiting for more.
func (c *wsConn) flush() {
	for {
		select {
		case v := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		default:
			return
		}
	}
}

// prepareRead applies the read limit and the pong-refreshed deadline.
func (c *wsConn) prepareRead(limit int64) {
	c.conn.SetReadLimit(limit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
}
