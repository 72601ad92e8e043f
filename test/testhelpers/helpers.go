// Package testhelpers provides common utilities and helper functions for
// testing the Huddle server.
//
// It contains reusable test utilities shared across the integration tests:
// starting a fully wired relay, connecting WebSocket clients, and sending
// and expecting protocol envelopes.
package testhelpers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/huddlechat/huddle/internal/room"
	"github.com/huddlechat/huddle/internal/server"
)

// ReadTimeout bounds every single expectation on a test connection.
const ReadTimeout = 3 * time.Second

// ChatServer bundles a running relay with everything a test needs to reach
// and to tear it down.
type ChatServer struct {
	Hub    *server.Hub
	Config *server.Config
	HTTP   *httptest.Server
	WSURL  string
}

// StartChatServer starts a fully wired relay on an httptest server. The
// configuration can be customized before anything is constructed from it.
// Cleanup is registered automatically.
func StartChatServer(t *testing.T, customize func(cfg *server.Config)) *ChatServer {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = "*"
	if customize != nil {
		customize(cfg)
	}

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	registry := room.NewRegistry(cfg.MaxParticipants)
	store := room.NewStore()
	router := room.NewRouter(registry, store, logger)

	metrics := server.NewMetrics(prometheus.NewRegistry())
	hub := server.NewHub(router, metrics, logger)
	go hub.Run()

	httpServer := httptest.NewServer(server.SetupRoutes(hub, cfg, logger))

	t.Cleanup(func() {
		httpServer.Close()
		_ = hub.Shutdown(5 * time.Second)
	})

	return &ChatServer{
		Hub:    hub,
		Config: cfg,
		HTTP:   httpServer,
		WSURL:  "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws",
	}
}

// Connect opens a WebSocket connection to the relay and consumes the initial
// roster push so tests start from a clean read position.
func (s *ChatServer) Connect(t *testing.T) *websocket.Conn {
	t.Helper()

	conn := s.ConnectRaw(t)
	ExpectEvent(t, conn, room.EventUpdateUserList)
	return conn
}

// ConnectRaw opens a WebSocket connection without consuming any frames.
func (s *ChatServer) ConnectRaw(t *testing.T) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", s.HTTP.URL)

	conn, resp, err := dialer.Dial(s.WSURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEnvelope marshals and sends one protocol envelope.
func SendEnvelope(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	env := room.Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("Failed to marshal %q payload: %v", event, err)
		}
		env.Data = raw
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("Failed to send %q: %v", event, err)
	}
}

// ExpectEvent reads frames until one carries the wanted event name and
// returns its envelope. Any other events received first are discarded,
// which keeps tests robust against interleaved broadcasts.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string) room.Envelope {
	t.Helper()

	deadline := time.Now().Add(ReadTimeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		var env room.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("Waiting for %q: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

// ExpectNoEvent asserts that no frame carrying the given event name arrives
// within the timeout. Other events are ignored; a closed connection also
// satisfies the expectation.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		var env room.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event == event {
			t.Fatalf("Expected no %q event, but received one", event)
		}
	}
}

// ExpectClosed asserts that the server closes the connection within the
// read timeout.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	deadline := time.Now().Add(ReadTimeout)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// DecodeData unmarshals an envelope payload into out.
func DecodeData(t *testing.T, env room.Envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("Failed to decode %q payload: %v", env.Event, err)
	}
}

// Join performs the set-username handshake and returns the assigned name.
func Join(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()

	SendEnvelope(t, conn, room.EventSetUsername, room.SetUsernamePayload{Name: name})
	env := ExpectEvent(t, conn, room.EventSetUsername)

	var ack room.SetUsernameAck
	DecodeData(t, env, &ack)
	if !ack.Success {
		t.Fatalf("Join as %q rejected: %s", name, ack.Message)
	}
	return ack.Username
}

// JoinExpectRejection performs the set-username handshake and asserts it is
// refused, returning the rejection message.
func JoinExpectRejection(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()

	SendEnvelope(t, conn, room.EventSetUsername, room.SetUsernamePayload{Name: name})
	env := ExpectEvent(t, conn, room.EventSetUsername)

	var ack room.SetUsernameAck
	DecodeData(t, env, &ack)
	if ack.Success {
		t.Fatalf("Join as %q unexpectedly succeeded", name)
	}
	return ack.Message
}

// testWriter routes server logs through t.Logf so failures carry context.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
