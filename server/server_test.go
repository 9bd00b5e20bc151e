package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lowerthirds/lowerthirds/internal/db"
	"github.com/lowerthirds/lowerthirds/internal/protocol"
)

type testEnv struct {
	server *Server
	hub    *Hub
	db     *db.ServerDB
	http   *httptest.Server
}

func newTestEnv(t *testing.T, exclusive bool) *testEnv {
	t.Helper()
	database, err := db.NewServerDB("")
	if err != nil {
		t.Fatalf("NewServerDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return newTestEnvWithDB(t, database, exclusive)
}

func newTestEnvWithDB(t *testing.T, database *db.ServerDB, exclusive bool) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	s, err := NewServer(hub, NewRegistry(testChannels()), database, exclusive)
	if err != nil {
		cancel()
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &testEnv{server: s, hub: hub, db: database, http: ts}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, data interface{}) {
	t.Helper()
	raw, err := protocol.Marshal(msgType, data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// sendRaw writes a frame without going through the codec.
func sendRaw(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads envelopes until one of msgType arrives, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType) *protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		env, err := protocol.ParseEnvelope(raw)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if env.Type == msgType {
			return env
		}
	}
}

// expectSilence fails if anything but pings arrive within d.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(d))
	defer conn.SetReadDeadline(time.Time{})
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected message %s", raw)
	}
}

func decode(t *testing.T, env *protocol.Envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
}
