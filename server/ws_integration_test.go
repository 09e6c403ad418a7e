package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Manager, *httptest.Server) {
	t.Helper()
	cfg := testConfig()
	cfg.SweepInterval = 50 * time.Millisecond
	cfg.ReplicationInterval = 20 * time.Millisecond
	m := NewManager(cfg, nil, nil)
	t.Cleanup(m.Shutdown)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return m, srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil scans inbound frames until one of the wanted type arrives,
// skipping interleaved state replication frames.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q frame: %v", typ, err)
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("malformed frame %q: %v", data, err)
		}
		if frame.Type == typ {
			return frame.Payload
		}
	}
	t.Fatalf("no %q frame before deadline", typ)
	return nil
}

func TestWebSocketJoinChatLeave(t *testing.T) {
	_, srv := newTestServer(t)

	connA := dialWS(t, srv, "room=town&user=ua&name=Ann")
	var welcomeA welcomePayload
	if err := json.Unmarshal(readUntil(t, connA, msgWelcome), &welcomeA); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if welcomeA.SessionID == "" {
		t.Fatalf("welcome should carry a session id")
	}
	if welcomeA.Room.RoomSlug != "town" {
		t.Fatalf("joined room = %q, want town", welcomeA.Room.RoomSlug)
	}

	connB := dialWS(t, srv, "room=town&user=ub&name=Ben")
	var welcomeB welcomePayload
	if err := json.Unmarshal(readUntil(t, connB, msgWelcome), &welcomeB); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if len(welcomeB.Room.Players) != 2 {
		t.Errorf("second joiner should see 2 players, got %d", len(welcomeB.Room.Players))
	}

	var joined playerJoinedPayload
	if err := json.Unmarshal(readUntil(t, connA, msgPlayerJoined), &joined); err != nil {
		t.Fatalf("decode playerJoined: %v", err)
	}
	if joined.SessionID != welcomeB.SessionID || joined.DisplayName != "Ben" {
		t.Errorf("unexpected playerJoined: %+v", joined)
	}

	chat := map[string]any{"type": "chat", "payload": map[string]any{"message": "hello town"}}
	if err := connB.WriteJSON(chat); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	for _, conn := range []*websocket.Conn{connA, connB} {
		var ev chatEventPayload
		if err := json.Unmarshal(readUntil(t, conn, msgChatEvent), &ev); err != nil {
			t.Fatalf("decode chat: %v", err)
		}
		if ev.SessionID != welcomeB.SessionID || ev.Message != "hello town" {
			t.Errorf("unexpected chat event: %+v", ev)
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := connB.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("send close: %v", err)
	}
	var left playerLeftPayload
	if err := json.Unmarshal(readUntil(t, connA, msgPlayerLeft), &left); err != nil {
		t.Fatalf("decode playerLeft: %v", err)
	}
	if left.SessionID != welcomeB.SessionID {
		t.Errorf("playerLeft session = %q, want %q", left.SessionID, welcomeB.SessionID)
	}
}

func TestWebSocketDuplicateUserEvictsOldSession(t *testing.T) {
	m, srv := newTestServer(t)

	connOld := dialWS(t, srv, "room=town&user=u1&name=First")
	var welcomeOld welcomePayload
	if err := json.Unmarshal(readUntil(t, connOld, msgWelcome), &welcomeOld); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}

	connNew := dialWS(t, srv, "room=town&user=u1&name=Second")
	var welcomeNew welcomePayload
	if err := json.Unmarshal(readUntil(t, connNew, msgWelcome), &welcomeNew); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if len(welcomeNew.Room.Players) != 1 {
		t.Errorf("after eviction the room should hold 1 player, got %d", len(welcomeNew.Room.Players))
	}
	if welcomeNew.Room.Players[0].SessionID != welcomeNew.SessionID {
		t.Errorf("surviving session = %q, want %q", welcomeNew.Room.Players[0].SessionID, welcomeNew.SessionID)
	}

	room, ok := m.Room("town")
	if !ok {
		t.Fatalf("town room missing")
	}
	deadline := time.Now().Add(2 * time.Second)
	for room.PlayerCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := room.PlayerCount(); got != 1 {
		t.Fatalf("player count = %d, want 1", got)
	}

	// The evicted socket gets torn down server-side.
	_ = connOld.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := connOld.ReadMessage(); err != nil {
			break
		}
	}
}
