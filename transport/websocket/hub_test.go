package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/tiltlink/game/pairing"
	"github.com/wricardo/tiltlink/game/relay"
	"github.com/wricardo/tiltlink/game/session"
)

func newTestClient(hub *Hub, id string, buffer int) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		send: make(chan []byte, buffer),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}

	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}

	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}

	if hub.sendBuffer != 256 {
		t.Errorf("Expected default send buffer 256, got %d", hub.sendBuffer)
	}
}

func TestHubRegisterUnregisterClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "conn-1", 1)

	hub.registerClient(client)
	if hub.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ClientCount())
	}

	hub.unregisterClient(client)
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("Expected send channel to be closed")
	}

	// Second unregister must not panic on the closed channel
	hub.unregisterClient(client)
}

func TestHubUnregisterIgnoresReplacedClient(t *testing.T) {
	hub := NewHub()
	stale := newTestClient(hub, "same-id", 1)
	fresh := newTestClient(hub, "same-id", 1)

	hub.registerClient(stale)
	hub.registerClient(fresh)
	hub.unregisterClient(stale)

	if hub.ClientCount() != 1 {
		t.Errorf("Expected fresh client to stay registered, got %d clients", hub.ClientCount())
	}
}

func TestHubDeliver(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "conn-1", 4)
	hub.registerClient(client)

	env, _ := relay.NewEnvelope("game-code", "a1b2")
	if err := hub.Deliver("conn-1", env); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	select {
	case data := <-client.send:
		var got relay.Envelope
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Failed to unmarshal envelope: %v", err)
		}
		if got.Event != "game-code" || string(got.Data) != `"a1b2"` {
			t.Errorf("Unexpected envelope: %+v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("No message queued within timeout")
	}

	if err := hub.Deliver("missing", env); err != ErrClientNotFound {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}
}

func TestHubDeliverSlowClient(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "slow", 1)
	hub.registerClient(client)

	env, _ := relay.NewEnvelope("move-desktop", json.RawMessage(`{}`))
	if err := hub.Deliver("slow", env); err != nil {
		t.Fatalf("First delivery should fit the buffer: %v", err)
	}
	if err := hub.Deliver("slow", env); err != ErrClientSlow {
		t.Fatalf("Expected ErrClientSlow, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "slow client to be dropped")
}

func TestHubRunClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub, "conn-1", 1)
	hub.registerClient(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("Expected all clients closed, got %d", hub.ClientCount())
	}
}

func TestHubCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no restriction", nil, "http://evil.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
		{"allowed origin", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"rejected origin", []string{"http://localhost:3000"}, "http://evil.example", false},
		{"no origin header", []string{"http://localhost:3000"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(WithAllowedOrigins(tt.allowed))
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// wsPeer is a test-side websocket client that understands batched frames
type wsPeer struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []relay.Envelope
}

func dialPeer(t *testing.T, server *httptest.Server) *wsPeer {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) emit(event string, data any) {
	p.t.Helper()
	env, err := relay.NewEnvelope(event, data)
	if err != nil {
		p.t.Fatalf("Failed to build envelope: %v", err)
	}
	payload, _ := json.Marshal(env)
	if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		p.t.Fatalf("Failed to write %s: %v", event, err)
	}
}

func (p *wsPeer) next() relay.Envelope {
	p.t.Helper()
	for len(p.pending) == 0 {
		p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			p.t.Fatalf("Failed to read WebSocket message: %v", err)
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var env relay.Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				p.t.Fatalf("Failed to unmarshal %q: %v", line, err)
			}
			p.pending = append(p.pending, env)
		}
	}
	env := p.pending[0]
	p.pending = p.pending[1:]
	return env
}

func (p *wsPeer) expect(event string) relay.Envelope {
	p.t.Helper()
	env := p.next()
	if env.Event != event {
		p.t.Fatalf("Expected event %s, got %s (%s)", event, env.Event, env.Data)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func newPairingServer(t *testing.T, code string) (*httptest.Server, *Hub, *session.Manager) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	sessions := session.NewManager()
	svc := pairing.NewService(sessions, relay.NewBroadcaster(hub),
		pairing.WithCodeGenerator(func() string { return code }))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, func(id string) EventHandler { return svc.Connect(id) })
	}))
	t.Cleanup(server.Close)

	return server, hub, sessions
}

func TestWebSocketPairingEndToEnd(t *testing.T) {
	server, hub, sessions := newPairingServer(t, "a1b2")

	desktop := dialPeer(t, server)
	defer desktop.conn.Close()
	mobile := dialPeer(t, server)
	defer mobile.conn.Close()

	desktop.emit("join-desktop", nil)
	if code := desktop.expect("game-code"); string(code.Data) != `"a1b2"` {
		t.Fatalf("Expected code a1b2, got %s", code.Data)
	}

	mobile.emit("join-mobile", "a1b2")
	desktop.expect("game-start")
	if start := mobile.expect("game-start"); string(start.Data) != `"a1b2"` {
		t.Errorf("Expected game-start for a1b2, got %s", start.Data)
	}

	mobile.emit("move-mobile", map[string]int{"x": 1, "y": 2})
	move := desktop.expect("move-desktop")
	if string(move.Data) != `{"x":1,"y":2}` {
		t.Errorf("Move payload changed in transit: %s", move.Data)
	}

	desktop.conn.Close()

	// The mobile's next event is game-over: its own move never came back
	mobile.expect("game-over")

	waitFor(t, func() bool { return sessions.Count() == 0 }, "session teardown")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "desktop unregister")

	late := dialPeer(t, server)
	defer late.conn.Close()
	late.emit("join-mobile", "a1b2")
	if reason := late.expect("game-error"); string(reason.Data) != `"No game to join."` {
		t.Errorf("Unexpected error reason: %s", reason.Data)
	}
}

func TestWebSocketSecondMobileRejected(t *testing.T) {
	server, _, _ := newPairingServer(t, "c0de")

	desktop := dialPeer(t, server)
	defer desktop.conn.Close()
	first := dialPeer(t, server)
	defer first.conn.Close()
	second := dialPeer(t, server)
	defer second.conn.Close()

	desktop.emit("join-desktop", nil)
	desktop.expect("game-code")

	first.emit("join-mobile", "c0de")
	first.expect("game-start")
	desktop.expect("game-start")

	second.emit("join-mobile", "c0de")
	if reason := second.expect("game-error"); string(reason.Data) != `"2nd screen has already joined this game."` {
		t.Errorf("Unexpected error reason: %s", reason.Data)
	}

	// The original pairing still relays
	first.emit("move-mobile", []float64{0.5, -0.5})
	desktop.expect("move-desktop")
}

func TestWebSocketMalformedMessageIgnored(t *testing.T) {
	server, hub, _ := newPairingServer(t, "beef")

	peer := dialPeer(t, server)
	defer peer.conn.Close()

	peer.conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	peer.conn.WriteMessage(websocket.TextMessage, []byte(`{"data":"no event"}`))

	peer.emit("join-desktop", nil)
	peer.expect("game-code")

	if hub.ClientCount() != 1 {
		t.Errorf("Expected connection to survive malformed input, got %d clients", hub.ClientCount())
	}
}
