package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apicove/apicove/internal/resolver"
	"github.com/apicove/apicove/internal/tabstore"
	"github.com/apicove/apicove/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*types.HistoryEntry
}

func (r *recordingSink) Save(entry *types.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newManager(sink HistorySink) (*Manager, *tabstore.Store) {
	store := tabstore.New()
	r := resolver.New(resolver.Scope{})
	return New(r, store, sink), store
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocket_LogOrdering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Reply "b" to the first inbound message, then wait for close.
		_, _, err = conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("b"))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	sink := &recordingSink{}
	m, store := newManager(sink)

	tab := types.NewRealtimeTab(types.KindWebSocket)
	tab.Realtime.URL = wsURL(server)
	store.Add(tab)

	if err := m.Toggle(context.Background(), tab.ID); err != nil {
		t.Fatalf("Expected connect to succeed, got: %v", err)
	}
	waitFor(t, func() bool {
		got, _ := store.Get(tab.ID)
		connected := false
		store.Apply(tab.ID, func(t *types.Tab) { connected = t.Realtime.Connected })
		return got != nil && connected
	})

	if err := m.Send(tab.ID, "a"); err != nil {
		t.Fatalf("Expected send to succeed, got: %v", err)
	}
	waitFor(t, func() bool {
		count := 0
		store.Apply(tab.ID, func(t *types.Tab) { count = t.Realtime.MessageCount })
		return count == 2 // sent "a" + received "b"
	})

	if err := m.Disconnect(tab.ID); err != nil {
		t.Fatalf("Expected disconnect to succeed, got: %v", err)
	}

	var messages []types.LogEntry
	store.Apply(tab.ID, func(t *types.Tab) {
		messages = append([]types.LogEntry(nil), t.Realtime.Messages...)
	})

	if len(messages) != 4 {
		t.Fatalf("Expected 4 log entries, got %d: %+v", len(messages), messages)
	}
	if messages[0].Type != types.LogConnection || !strings.HasPrefix(messages[0].Data, "Connected to ") {
		t.Errorf("Expected opening connection entry first, got: %+v", messages[0])
	}
	if messages[1].Direction != types.DirectionSent || messages[1].Data != "a" {
		t.Errorf("Expected sent(a) second, got: %+v", messages[1])
	}
	if messages[2].Direction != types.DirectionReceived || messages[2].Data != "b" {
		t.Errorf("Expected received(b) third, got: %+v", messages[2])
	}
	if messages[3].Type != types.LogConnection || !strings.HasPrefix(messages[3].Data, "Connection closed") {
		t.Errorf("Expected closing connection entry last, got: %+v", messages[3])
	}

	connected := false
	store.Apply(tab.ID, func(t *types.Tab) { connected = t.Realtime.Connected })
	if connected {
		t.Error("Expected tab to be disconnected")
	}
	if sink.count() != 1 {
		t.Errorf("Expected one persisted session, got: %d", sink.count())
	}
}

func TestWebSocket_ReconnectExclusivity(t *testing.T) {
	var mu sync.Mutex
	live := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		live++
		mu.Unlock()
		defer func() {
			mu.Lock()
			live--
			mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	m, store := newManager(nil)
	tab := types.NewRealtimeTab(types.KindWebSocket)
	tab.Realtime.URL = wsURL(server)
	store.Add(tab)

	if err := m.connectWebSocket(context.Background(), tab.ID); err != nil {
		t.Fatalf("Expected first connect to succeed, got: %v", err)
	}
	if err := m.connectWebSocket(context.Background(), tab.ID); err != nil {
		t.Fatalf("Expected reconnect to succeed, got: %v", err)
	}

	if !m.Connected(tab.ID) {
		t.Error("Expected a live registry entry after reconnect")
	}

	// The prior handle must be closed: the server eventually sees one
	// remaining connection.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return live == 1
	})

	_ = m.Disconnect(tab.ID)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return live == 0
	})
}

func TestWebSocket_DialFailureLogsError(t *testing.T) {
	m, store := newManager(nil)
	tab := types.NewRealtimeTab(types.KindWebSocket)
	tab.Realtime.URL = "ws://127.0.0.1:1"
	store.Add(tab)

	if err := m.Toggle(context.Background(), tab.ID); err == nil {
		t.Fatal("Expected dial failure")
	}

	var messages []types.LogEntry
	store.Apply(tab.ID, func(t *types.Tab) { messages = t.Realtime.Messages })
	if len(messages) != 1 || messages[0].Type != types.LogError {
		t.Errorf("Expected one error log entry, got: %+v", messages)
	}
	if m.Connected(tab.ID) {
		t.Error("Expected no registry entry after dial failure")
	}
}

func TestSessionURL(t *testing.T) {
	env := &types.Environment{
		ID:       "e",
		Name:     "dev",
		BaseURL:  "https://api.x.com",
		IsActive: true,
	}
	store := tabstore.New()
	m := New(resolver.New(resolver.Scope{ActiveEnvironment: env}), store, nil)

	cases := []struct {
		in   string
		want string
	}{
		{"/live", "wss://api.x.com/live"},
		{"ws://example.com/sock", "ws://example.com/sock"},
		{"http://example.com/sock", "ws://example.com/sock"},
		{"https://example.com/sock", "wss://example.com/sock"},
	}
	for _, tc := range cases {
		if got := m.sessionURL(tc.in); got != tc.want {
			t.Errorf("sessionURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// sioTestServer speaks just enough Engine.IO v4 to handshake, deliver events,
// and echo pings.
func sioTestServer(t *testing.T, onEvent func(conn *websocket.Conn, payload string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/socket.io/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Engine.IO open handshake.
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`0{"sid":"abc","upgrades":[],"pingInterval":25000,"pingTimeout":20000}`))

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg := string(frame)
			switch {
			case msg == "40":
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"xyz"}`))
			case strings.HasPrefix(msg, "42"):
				if onEvent != nil {
					onEvent(conn, msg[2:])
				}
			}
		}
	}))
}

func TestSocketIO_ConnectEmitReceive(t *testing.T) {
	server := sioTestServer(t, func(conn *websocket.Conn, payload string) {
		// Reply to any event with an "update" event and an unsubscribed one.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`42["update",{"n":1}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`42["ignored","x"]`))
	})
	defer server.Close()

	sink := &recordingSink{}
	m, store := newManager(sink)

	tab := types.NewRealtimeTab(types.KindSocketIO)
	tab.Realtime.URL = wsURL(server)
	tab.Realtime.SocketIO.Events = []types.EventSub{
		{Name: "update", Enabled: true},
		{Name: "ignored", Enabled: false},
	}
	store.Add(tab)

	if err := m.Toggle(context.Background(), tab.ID); err != nil {
		t.Fatalf("Expected connect to succeed, got: %v", err)
	}
	waitFor(t, func() bool {
		connected := false
		store.Apply(tab.ID, func(t *types.Tab) { connected = t.Realtime.Connected })
		return connected
	})

	err := m.Emit(tab.ID, "greet", []types.SocketIOArg{
		{Value: `{"name":"ada"}`, Format: "json"},
		{Value: "plain", Format: "text"},
	})
	if err != nil {
		t.Fatalf("Expected emit to succeed, got: %v", err)
	}

	waitFor(t, func() bool {
		count := 0
		store.Apply(tab.ID, func(t *types.Tab) { count = t.Realtime.MessageCount })
		return count >= 2 // sent greet + received update
	})

	var messages []types.LogEntry
	store.Apply(tab.ID, func(t *types.Tab) {
		messages = append([]types.LogEntry(nil), t.Realtime.Messages...)
	})

	var sent, received *types.LogEntry
	for i := range messages {
		entry := &messages[i]
		if entry.Type != types.LogEvent {
			continue
		}
		switch entry.Direction {
		case types.DirectionSent:
			sent = entry
		case types.DirectionReceived:
			received = entry
		}
	}
	if sent == nil || sent.Event != "greet" {
		t.Fatalf("Expected sent greet event, got: %+v", messages)
	}
	if !strings.Contains(sent.Data, `{"name":"ada"}`) || !strings.Contains(sent.Data, `"plain"`) {
		t.Errorf("Expected json arg decoded and text arg raw, got: %s", sent.Data)
	}
	if received == nil || received.Event != "update" {
		t.Fatalf("Expected received update event, got: %+v", messages)
	}
	for _, entry := range messages {
		if entry.Event == "ignored" {
			t.Error("Expected disabled event to be filtered out")
		}
	}

	_ = m.Disconnect(tab.ID)
	if sink.count() != 1 {
		t.Errorf("Expected one persisted session, got: %d", sink.count())
	}
}

func TestSocketIO_BadJSONArgFallsBackToRawString(t *testing.T) {
	if got := decodeArg(types.SocketIOArg{Value: "{broken", Format: "json"}); got != "{broken" {
		t.Errorf("Expected raw fallback, got: %v", got)
	}
	if got := decodeArg(types.SocketIOArg{Value: `{"a":1}`, Format: "json"}); got == `{"a":1}` {
		t.Error("Expected valid JSON arg to be decoded, got raw string")
	}
}

func TestSocketIOEndpoint(t *testing.T) {
	got, err := socketIOEndpoint("wss://api.x.com")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(got, "wss://api.x.com/socket.io/?") ||
		!strings.Contains(got, "EIO=4") || !strings.Contains(got, "transport=websocket") {
		t.Errorf("Expected handshake endpoint, got: %s", got)
	}
}
