package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDispatch(t *testing.T) {
	tests := []struct {
		name string
		in   Message
		want any
	}{
		{"system", Message{Type: MsgSystem, Message: "hi"}, WSSystemMsg{Text: "hi"}},
		{"confirmation", Message{Type: MsgSystem, Message: "ok", Nickname: "Alice"}, WSSystemMsg{Text: "ok", Nickname: "Alice"}},
		{"chat", Message{Type: MsgChat, Sender: "Bob", Message: "yo"}, WSChatMsg{Sender: "Bob", Text: "yo"}},
		{"typing start", Message{Type: MsgTypingStart, Sender: "Bob"}, WSTypingMsg{Sender: "Bob", Typing: true}},
		{"typing stop", Message{Type: MsgTypingStop, Sender: "Bob"}, WSTypingMsg{Sender: "Bob"}},
		{"user list", Message{Type: MsgUserListUpdate, Users: []string{"A", "B"}}, WSUserListMsg{Users: []string{"A", "B"}}},
		{"empty user list", Message{Type: MsgUserListUpdate}, WSUserListMsg{Users: []string{}}},
		{"unknown", Message{Type: "BOGUS"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dispatch(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("Dispatch() = %#v, want nil", got)
				}
				return
			}
			switch want := tt.want.(type) {
			case WSUserListMsg:
				g, ok := got.(WSUserListMsg)
				if !ok || strings.Join(g.Users, ",") != strings.Join(want.Users, ",") || g.Users == nil {
					t.Fatalf("Dispatch() = %#v, want %#v", got, want)
				}
			default:
				if got != tt.want {
					t.Fatalf("Dispatch() = %#v, want %#v", got, tt.want)
				}
			}
		})
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws")
	msg := c.Chat("hello")()
	res, ok := msg.(WSSendResultMsg)
	if !ok || !errors.Is(res.Err, ErrNotConnected) {
		t.Fatalf("Chat() without connection = %#v", msg)
	}

	if got := c.ReadLoop(context.Background())(); got != (WSDisconnectedMsg{Err: ErrNotConnected}) {
		t.Fatalf("ReadLoop() without connection = %#v", got)
	}
}

func TestListenReadAndSend(t *testing.T) {
	received := make(chan map[string]any, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOPE"}`))
		conn.WriteJSON(Message{Type: MsgChat, Sender: "Bob", Message: "hi"})

		for {
			var v map[string]any
			if err := conn.ReadJSON(&v); err != nil {
				return
			}
			received <- v
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewWSClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer c.Close()

	if msg := c.Listen(ctx)(); msg != (WSConnectedMsg{}) {
		t.Fatalf("Listen() = %#v", msg)
	}

	if msg := c.ReadLoop(ctx)(); msg != (WSChatMsg{Sender: "Bob", Text: "hi"}) {
		t.Fatalf("ReadLoop() = %#v, want chat from Bob", msg)
	}

	for _, cmd := range []func() any{
		func() any { return c.SetNickname("Alice")() },
		func() any { return c.Typing(true)() },
	} {
		if res := cmd().(WSSendResultMsg); res.Err != nil {
			t.Fatalf("send: %v", res.Err)
		}
	}

	want := []string{"SET_NICKNAME", "TYPING_START"}
	for _, typ := range want {
		select {
		case v := <-received:
			if v["type"] != typ {
				t.Errorf("server got %v, want type %s", v, typ)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("server did not receive %s", typ)
		}
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewWSClient("ws://127.0.0.1:1/ws")
	if msg := c.Listen(ctx)(); msg != nil {
		t.Fatalf("Listen() on cancelled ctx = %#v, want nil", msg)
	}
}
