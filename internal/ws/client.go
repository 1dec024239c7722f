package ws

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chat-relay/relay/internal/config"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// client adapts one WebSocket connection to session.Conn. Frames queued by
// Send are written in order by writePump.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	open   atomic.Bool
	once   sync.Once
	remote string
	cfg    config.RelayConfig
	log    *slog.Logger
}

func newClient(conn *websocket.Conn, remote string, cfg config.RelayConfig, log *slog.Logger) *client {
	c := &client{
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		remote: remote,
		cfg:    cfg,
		log:    log,
	}
	c.open.Store(true)
	return c
}

// Send never blocks. A client that cannot keep up is closed; its read loop
// then runs the normal disconnect path.
func (c *client) Send(data []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.log.Warn("ws client too slow, disconnecting", "remote", c.remote)
		c.close()
		return ErrSendQueueFull
	}
}

func (c *client) Open() bool {
	return c.open.Load()
}

// close stops accepting frames. writePump drains the queue and then closes
// the socket.
func (c *client) close() {
	c.once.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("ws write error", "remote", c.remote, "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued and a close frame. Errors are
// ignored; the socket is going away.
func (c *client) flush() {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(deadline)
			if c.conn.WriteMessage(websocket.TextMessage, msg) != nil {
				return
			}
		default:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

// readPump delivers text frames to onMessage until the connection fails or
// the peer stops answering pings.
func (c *client) readPump(onMessage func([]byte)) error {
	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind != websocket.TextMessage {
			c.log.Debug("ignoring non-text frame", "remote", c.remote, "kind", kind)
			continue
		}
		onMessage(data)
	}
}
