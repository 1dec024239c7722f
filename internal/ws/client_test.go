package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chat-relay/relay/internal/config"
	"github.com/gorilla/websocket"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and returns
// both ends of the connection.
func dialTestWS(t *testing.T) (serverConn, clientConn *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case serverConn = <-connCh:
		t.Cleanup(func() { serverConn.Close() })
		return serverConn, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil
	}
}

func testRelayConfig() config.RelayConfig {
	cfg := config.Default().Relay
	cfg.SendBuffer = 2
	return cfg
}

func TestSend_DeliversInOrder(t *testing.T) {
	serverConn, clientConn := dialTestWS(t)
	c := newClient(serverConn, "test", testRelayConfig(), discardLogger())
	go c.writePump()
	defer c.close()

	for _, msg := range []string{`{"n":1}`, `{"n":2}`} {
		if err := c.Send([]byte(msg)); err != nil {
			t.Fatalf("Send(%s): %v", msg, err)
		}
	}

	for _, want := range []string{`{"n":1}`, `{"n":2}`} {
		clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := clientConn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != want {
			t.Errorf("got %s, want %s", data, want)
		}
	}
}

func TestSend_FullQueueClosesClient(t *testing.T) {
	serverConn, _ := dialTestWS(t)
	// writePump is not started, so the queue only fills.
	c := newClient(serverConn, "test", testRelayConfig(), discardLogger())

	if err := c.Send([]byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("3")); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("third Send = %v, want ErrSendQueueFull", err)
	}
	if c.Open() {
		t.Error("client should be closed after overflow")
	}
	if err := c.Send([]byte("4")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close = %v, want ErrClosed", err)
	}
}

// TestWritePump_ClosesOnWriteError verifies that a write failure marks the
// client closed so the dispatcher stops sending to it.
func TestWritePump_ClosesOnWriteError(t *testing.T) {
	serverConn, _ := dialTestWS(t)
	c := newClient(serverConn, "test", testRelayConfig(), discardLogger())

	// Close the connection so any write attempt will immediately fail.
	serverConn.Close()
	c.send <- []byte(`{"type":"test"}`)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writePump did not exit after write error")
	}
	if c.Open() {
		t.Error("client still open after write error")
	}
}

func TestClose_FlushesQueueThenCloseFrame(t *testing.T) {
	serverConn, clientConn := dialTestWS(t)
	c := newClient(serverConn, "test", testRelayConfig(), discardLogger())

	if err := c.Send([]byte("bye")); err != nil {
		t.Fatal(err)
	}
	c.close()
	go c.writePump()

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("read queued frame: %v", err)
	}
	if string(data) != "bye" {
		t.Errorf("got %q, want bye", data)
	}

	_, _, err = clientConn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestReadPump_SkipsBinaryFrames(t *testing.T) {
	serverConn, clientConn := dialTestWS(t)
	c := newClient(serverConn, "test", testRelayConfig(), discardLogger())

	got := make(chan string, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.readPump(func(data []byte) { got <- string(data) })
	}()

	clientConn.WriteMessage(websocket.BinaryMessage, []byte("bin"))
	clientConn.WriteMessage(websocket.TextMessage, []byte("text"))

	select {
	case msg := <-got:
		if msg != "text" {
			t.Errorf("got %q, want text", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no text frame delivered")
	}

	clientConn.Close()
	select {
	case err := <-errCh:
		if err == nil {
			t.Error("readPump returned nil error after peer close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("readPump did not return after peer close")
	}
}
