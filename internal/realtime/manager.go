package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/apicove/apicove/internal/resolver"
	"github.com/apicove/apicove/internal/tabstore"
	"github.com/apicove/apicove/internal/types"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// HistorySink persists finished sessions. Failures are logged, never thrown
// back to the caller.
type HistorySink interface {
	Save(entry *types.HistoryEntry) error
}

// connection is a live realtime handle. Exactly one exists per tab id.
type connection interface {
	Send(text string) error
	Emit(event string, args []types.SocketIOArg) error
	Close() error
}

// Manager owns the per-tab connection registry and the session lifecycles for
// WebSocket and Socket.IO tabs.
type Manager struct {
	Resolver *resolver.Resolver
	Store    *tabstore.Store
	History  HistorySink
	Dialer   *websocket.Dialer
	Now      func() time.Time

	mu    sync.Mutex
	conns map[string]connection
}

// New creates a manager over the given store and history sink.
func New(r *resolver.Resolver, store *tabstore.Store, history HistorySink) *Manager {
	return &Manager{
		Resolver: r,
		Store:    store,
		History:  history,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 45 * time.Second,
		},
		Now:   time.Now,
		conns: make(map[string]connection),
	}
}

// Toggle connects a disconnected tab and disconnects a connected one, using
// the protocol implied by the tab's kind.
func (m *Manager) Toggle(ctx context.Context, tabID string) error {
	tab, ok := m.Store.Get(tabID)
	if !ok || tab.Realtime == nil {
		return fmt.Errorf("no realtime tab %q", tabID)
	}

	connected := false
	m.Store.Apply(tabID, func(t *types.Tab) {
		connected = t.Realtime.Connected
	})
	if connected {
		return m.Disconnect(tabID)
	}

	if tab.Kind == types.KindSocketIO {
		return m.connectSocketIO(ctx, tabID)
	}
	return m.connectWebSocket(ctx, tabID)
}

// Disconnect tears down the tab's live connection, if any. Teardown appends
// the closing log entry and persists the session.
func (m *Manager) Disconnect(tabID string) error {
	m.mu.Lock()
	conn := m.conns[tabID]
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Send writes pending text to the tab's WebSocket connection, logging the
// outbound message optimistically.
func (m *Manager) Send(tabID, text string) error {
	m.mu.Lock()
	conn := m.conns[tabID]
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("tab %q is not connected", tabID)
	}
	return conn.Send(text)
}

// Emit sends a Socket.IO event with the given arguments.
func (m *Manager) Emit(tabID, event string, args []types.SocketIOArg) error {
	m.mu.Lock()
	conn := m.conns[tabID]
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("tab %q is not connected", tabID)
	}
	return conn.Emit(event, args)
}

// Connected reports whether the tab currently holds a live handle.
func (m *Manager) Connected(tabID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[tabID] != nil
}

// register installs a new handle for the tab, closing and discarding any
// prior one so a tab never holds two live connections.
func (m *Manager) register(tabID string, conn connection) {
	m.mu.Lock()
	prior := m.conns[tabID]
	m.conns[tabID] = conn
	m.mu.Unlock()
	if prior != nil {
		_ = prior.Close()
	}
}

// unregister removes the handle, but only when it is still the current one:
// a reconnect may already have replaced it.
func (m *Manager) unregister(tabID string, conn connection) {
	m.mu.Lock()
	if m.conns[tabID] == conn {
		delete(m.conns, tabID)
	}
	m.mu.Unlock()
}

// sessionURL resolves and normalizes a realtime URL: relative URLs join the
// environment base URL, http(s) schemes swap to ws(s), and a bare host
// defaults to ws.
func (m *Manager) sessionURL(raw string) string {
	u := strings.TrimSpace(m.Resolver.Resolve(raw))

	if !schemePattern.MatchString(u) {
		if base := m.Resolver.BaseURL(); base != "" {
			u = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(u, "/")
		}
	}

	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if !schemePattern.MatchString(u) {
		u = "ws://" + u
	}
	return u
}

// appendLog merges one log entry into the tab through the store, so
// interleaved callbacks always see the latest message log.
func (m *Manager) appendLog(tabID string, entry types.LogEntry) {
	entry.Timestamp = m.Now()
	m.Store.Apply(tabID, func(tab *types.Tab) {
		tab.Realtime.Messages = append(tab.Realtime.Messages, entry)
		if entry.Type == types.LogMessage || entry.Type == types.LogEvent {
			tab.Realtime.MessageCount++
		}
	})
}

// persistSession writes the finished session to history. Failures are logged
// and swallowed.
func (m *Manager) persistSession(tabID string) {
	if m.History == nil {
		return
	}

	var entry *types.HistoryEntry
	m.Store.Apply(tabID, func(tab *types.Tab) {
		rt := tab.Realtime
		duration := int64(0)
		if !rt.ConnectedAt.IsZero() {
			duration = m.Now().Sub(rt.ConnectedAt).Milliseconds()
		}
		meta := map[string]any{
			"messages":     rt.Messages,
			"messageCount": rt.MessageCount,
		}
		if rt.SocketIO != nil {
			meta["events"] = rt.SocketIO.Events
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			metaJSON = []byte("{}")
		}
		entry = &types.HistoryEntry{
			ID:           uuid.NewString(),
			RequestType:  string(tab.Kind),
			Method:       "WS",
			URL:          rt.URL,
			Headers:      "{}",
			Params:       "{}",
			AuthType:     string(types.AuthNone),
			AuthData:     "{}",
			BodyMeta:     string(metaJSON),
			ResponseTime: duration,
			ResponseSize: rt.MessageCount,
			WorkspaceID:  tab.WorkspaceID,
			CreatedAt:    m.Now().UTC().Format(time.RFC3339),

			ResponseHeaders: "{}",
		}
	})
	if entry == nil {
		return
	}

	if err := m.History.Save(entry); err != nil {
		log.Printf("realtime history save failed: %v", err)
	}
}

// closeText renders a WebSocket close code for the session log.
func closeText(code int) string {
	if code <= 0 {
		return "Connection closed"
	}
	return fmt.Sprintf("Connection closed (code %d)", code)
}
