package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()

	s := New("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	// The handler registers the client before entering its read loop; wait
	// for it to show up.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return s, conn
}

func TestClientReceivesBroadcast(t *testing.T) {
	s, conn := newTestServer(t)

	frame := []byte{1, 2, 3, 4}
	s.Broadcast(frame)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", kind)
	}
	if string(data) != string(frame) {
		t.Errorf("frame = %v, want %v", data, frame)
	}
}

func TestBroadcastCopiesFrame(t *testing.T) {
	s, conn := newTestServer(t)

	frame := []byte{1, 2, 3, 4}
	s.Broadcast(frame)
	frame[0] = 99

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 1 {
		t.Error("broadcast did not copy the frame before queuing")
	}
}

func TestClientCommandForwarded(t *testing.T) {
	s, conn := newTestServer(t)

	msg := `{"type":"update_params","params":{"beta":2.5}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-s.Commands():
		if cmd.Type != "update_params" {
			t.Errorf("type = %q, want update_params", cmd.Type)
		}
		if cmd.Params["beta"] != 2.5 {
			t.Errorf("beta = %v, want 2.5", cmd.Params["beta"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	s, conn := newTestServer(t)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never removed after disconnect")
		}
		time.Sleep(time.Millisecond)
	}
}
