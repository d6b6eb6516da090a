package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/apicove/apicove/internal/types"
)

// wsConn is a live plain-WebSocket session for one tab.
type wsConn struct {
	m     *Manager
	tabID string
	conn  *websocket.Conn
	url   string

	closeOnce sync.Once
	writeMu   sync.Mutex
}

// connectWebSocket dials the tab's URL and installs the session in the
// registry, replacing any prior handle.
func (m *Manager) connectWebSocket(ctx context.Context, tabID string) error {
	tab, ok := m.Store.Get(tabID)
	if !ok || tab.Realtime == nil {
		return fmt.Errorf("no realtime tab %q", tabID)
	}

	url := m.sessionURL(tab.Realtime.URL)
	conn, resp, err := m.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		m.appendLog(tabID, types.LogEntry{
			Type:      types.LogError,
			Direction: types.DirectionSystem,
			Data:      err.Error(),
		})
		return err
	}

	ws := &wsConn{m: m, tabID: tabID, conn: conn, url: url}
	m.register(tabID, ws)

	m.Store.Apply(tabID, func(t *types.Tab) {
		t.Realtime.URL = url
		t.Realtime.Connected = true
		t.Realtime.ConnectedAt = m.Now()
		t.Realtime.Messages = nil
		t.Realtime.MessageCount = 0
	})
	m.appendLog(tabID, types.LogEntry{
		Type:      types.LogConnection,
		Direction: types.DirectionSystem,
		Data:      "Connected to " + url,
	})

	go ws.readLoop()
	return nil
}

// Send logs the outbound message immediately, then writes it. Logging is
// optimistic: it is not gated on the write succeeding.
func (c *wsConn) Send(text string) error {
	c.m.appendLog(c.tabID, types.LogEntry{
		Type:      types.LogMessage,
		Direction: types.DirectionSent,
		Data:      text,
	})

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.m.appendLog(c.tabID, types.LogEntry{
			Type:      types.LogError,
			Direction: types.DirectionSystem,
			Data:      "Failed to send: " + err.Error(),
		})
		return err
	}
	return nil
}

// Emit is not supported on plain WebSocket tabs.
func (c *wsConn) Emit(string, []types.SocketIOArg) error {
	return errors.New("emit requires a Socket.IO tab")
}

// Close shuts the socket down synchronously and finalizes the session. The
// read loop's own exit path is a no-op afterwards.
func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.finalize(websocket.CloseNormalClosure)
	return err
}

// readLoop pumps inbound messages into the tab's log until the connection
// dies, then finalizes the session exactly once.
func (c *wsConn) readLoop() {
	closeCode := 0
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				closeCode = closeErr.Code
			}
			break
		}
		c.m.appendLog(c.tabID, types.LogEntry{
			Type:      types.LogMessage,
			Direction: types.DirectionReceived,
			Data:      string(message),
		})
	}
	c.finalize(closeCode)
}

// finalize appends the closing entry, flips the tab to disconnected, persists
// the session and releases the registry slot.
func (c *wsConn) finalize(closeCode int) {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		c.m.appendLog(c.tabID, types.LogEntry{
			Type:      types.LogConnection,
			Direction: types.DirectionSystem,
			Data:      closeText(closeCode),
		})
		c.m.Store.Apply(c.tabID, func(t *types.Tab) {
			t.Realtime.Connected = false
		})
		c.m.persistSession(c.tabID)
		c.m.unregister(c.tabID, c)
	})
}
