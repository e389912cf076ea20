package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rostammahabadi/better-slack-backend/internal/auth"
	"github.com/Rostammahabadi/better-slack-backend/internal/observability"
	"github.com/Rostammahabadi/better-slack-backend/internal/router"
)

// Conn is one live websocket connection. Reads and dispatches happen on
// readLoop's goroutine; all socket writes happen on writeLoop's goroutine,
// fed by the send channel. Conn implements router.Session.
type Conn struct {
	id       string
	identity *auth.Identity
	sock     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	server   *Server

	closeOnce sync.Once
}

// ID returns the process-unique connection id.
func (c *Conn) ID() string { return c.id }

// UserID returns the authenticated user id, empty in presence-only mode.
func (c *Conn) UserID() string { return c.identity.UserID }

// Username returns the authenticated display name, may be empty.
func (c *Conn) Username() string { return c.identity.Username }

// enqueue queues an outbound frame. A full buffer drops the frame rather
// than blocking the fanout path; the slow consumer falls behind alone.
func (c *Conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		if c.server.metrics != nil {
			c.server.metrics.DroppedFrames.Inc()
		}
		c.server.log.Warn(context.Background(), "send buffer full, dropping frame", "conn_id", c.id)
	}
}

func (c *Conn) readLoop() {
	defer c.teardown()

	ctx := context.WithValue(context.Background(), observability.ConnIDKey, c.id)

	c.sock.SetReadLimit(maxFrameBytes)
	c.sock.SetReadDeadline(time.Now().Add(c.server.pongTimeout))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.server.pongTimeout))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.log.Warn(ctx, "read failed", "error", err)
			}
			return
		}
		c.sock.SetReadDeadline(time.Now().Add(c.server.pongTimeout))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.server.log.Warn(ctx, "malformed frame", "error", err)
			c.server.EmitToConn(c.id, router.EventError,
				map[string]string{"message": "Malformed frame"})
			continue
		}

		// Dispatch reports failures to this connection itself; here the
		// error only matters for the log line it already produced.
		if d := c.server.dispatch(); d != nil {
			d.Dispatch(ctx, c, f.Event, f.Data)
		}
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.server.pingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close initiates a server-side close with the given code. Cleanup still
// runs through readLoop's teardown when the peer acknowledges or the
// socket breaks.
func (c *Conn) close(code int, reason string) {
	c.sock.SetWriteDeadline(time.Now().Add(writeWait))
	c.sock.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.teardown()
}

func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sock.Close()
		c.server.removeConn(c)
	})
}
