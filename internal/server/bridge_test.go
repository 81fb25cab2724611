package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hostlink/hostlink/internal/log"
	"github.com/hostlink/hostlink/internal/protocol"
)

func dialBridge(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	b := NewBridge(env.srv, "127.0.0.1:0", log.New("error"))
	ts := httptest.NewServer(http.HandlerFunc(b.handleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsRoundTrip(t *testing.T, conn *websocket.Conn, line string) protocol.Response {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := protocol.DecodeResponse(raw)
	if err != nil {
		t.Fatalf("bad response %q: %v", raw, err)
	}
	return resp
}

func TestBridgePing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false, false, nil)
	conn := dialBridge(t, env)

	resp := wsRoundTrip(t, conn, `{"type":"ping"}`)
	if !resp.Succeeded() || resp["message"] != "pong" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestBridgeSharesDispatchSemantics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, false, nil)
	conn := dialBridge(t, env)

	// Same auth gate as TCP.
	resp := wsRoundTrip(t, conn, `{"type":"validate_pin","pin":"0000"}`)
	if resp.Succeeded() {
		t.Fatal("expected wrong PIN rejected over the bridge")
	}

	// Same JSON error contract.
	resp = wsRoundTrip(t, conn, `{oops`)
	if resp.Succeeded() || !strings.HasPrefix(resp.ErrorMessage(), "Invalid JSON:") {
		t.Fatalf("unexpected response %v", resp)
	}
}
