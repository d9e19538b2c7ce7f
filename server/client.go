package server

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"telecare/realtime"
)

// client owns one WebSocket connection: the sink other components deliver
// into, and the single goroutine allowed to write to the conn.
type client struct {
	conn         *websocket.Conn
	sink         *realtime.ChannelSink
	log          *slog.Logger
	writeTimeout time.Duration
	pongTimeout  time.Duration
}

// writePump drains the sink into the connection and keeps the peer alive
// with pings. It exits when the sink closes or a write fails; closing the
// connection is left to the caller so the read loop unblocks either way.
func (c *client) writePump() {
	pingInterval := c.pongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-c.sink.Events:
			env, err := envelope(e)
			if err != nil {
				c.log.Error("encode event", "event", e.Name(), "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.sink.Done():
			// Evicted by a newer connection or shut down: drain what is
			// already queued, then tell the peer why.
			for {
				select {
				case e := <-c.sink.Events:
					if env, err := envelope(e); err == nil {
						c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
						_ = c.conn.WriteJSON(env)
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session replaced"))
					_ = c.conn.Close()
					return
				}
			}
		}
	}
}
