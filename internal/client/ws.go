package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var ErrNotConnected = errors.New("not connected")

// WSClient manages the WebSocket connection to the relay.
type WSClient struct {
	url string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes
	conn    *websocket.Conn
	pingCtx context.CancelFunc // cancels the active ping goroutine
}

// NewWSClient creates a client that connects to the given WebSocket URL.
func NewWSClient(url string) *WSClient {
	return &WSClient{url: url}
}

// --- Bubble Tea messages ---

// WSConnectedMsg is sent when the WebSocket connects.
type WSConnectedMsg struct{}

// WSDisconnectedMsg is sent when the connection drops.
type WSDisconnectedMsg struct{ Err error }

// WSSystemMsg carries a SYSTEM message. Nickname is set only on the
// confirmation of our own nickname.
type WSSystemMsg struct {
	Text     string
	Nickname string
}

// WSChatMsg is a chat line from another user.
type WSChatMsg struct {
	Sender string
	Text   string
}

// WSTypingMsg reports that Sender started or stopped typing.
type WSTypingMsg struct {
	Sender string
	Typing bool
}

// WSUserListMsg replaces the online user list.
type WSUserListMsg struct{ Users []string }

// WSSendResultMsg reports the outcome of an outbound frame.
type WSSendResultMsg struct{ Err error }

// Listen returns a Bubble Tea command that connects, retrying with backoff
// until it succeeds or ctx is cancelled.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				log.Printf("ws dial error: %v (retry in %v)", err, delay)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			// Cancel any previous ping goroutine.
			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)

			return WSConnectedMsg{}
		}
	}
}

// ReadLoop returns a Bubble Tea command that reads until the next message the
// UI cares about. It should be re-issued after each delivered message.
func (c *WSClient) ReadLoop(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return WSDisconnectedMsg{Err: ErrNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return WSDisconnectedMsg{Err: err}
			}

			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if teaMsg := Dispatch(msg); teaMsg != nil {
				return teaMsg
			}
		}
	}
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WSClient) send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

func (c *WSClient) sendCmd(v any) tea.Cmd {
	return func() tea.Msg {
		return WSSendResultMsg{Err: c.send(v)}
	}
}

// SetNickname requests a display name.
func (c *WSClient) SetNickname(name string) tea.Cmd {
	return c.sendCmd(setNicknameRequest{Type: MsgSetNickname, Nickname: name})
}

// Chat sends a chat line.
func (c *WSClient) Chat(text string) tea.Cmd {
	return c.sendCmd(chatRequest{Type: MsgChat, Message: text})
}

// Typing announces that we started or stopped typing.
func (c *WSClient) Typing(active bool) tea.Cmd {
	t := MsgTypingStop
	if active {
		t = MsgTypingStart
	}
	return c.sendCmd(typingRequest{Type: t})
}

// Close drops the current connection, if any.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
		c.pingCtx = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Dispatch converts a server message into the Bubble Tea message the UI
// handles. Unknown types yield nil.
func Dispatch(msg Message) tea.Msg {
	switch msg.Type {
	case MsgSystem:
		return WSSystemMsg{Text: msg.Message, Nickname: msg.Nickname}
	case MsgChat:
		return WSChatMsg{Sender: msg.Sender, Text: msg.Message}
	case MsgTypingStart:
		return WSTypingMsg{Sender: msg.Sender, Typing: true}
	case MsgTypingStop:
		return WSTypingMsg{Sender: msg.Sender, Typing: false}
	case MsgUserListUpdate:
		users := msg.Users
		if users == nil {
			users = []string{}
		}
		return WSUserListMsg{Users: users}
	}
	return nil
}
