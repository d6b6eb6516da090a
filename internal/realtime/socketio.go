package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tidwall/jsonc"

	"github.com/apicove/apicove/internal/types"
)

// Engine.IO packet types (first byte of every frame).
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO packet types (second byte of message frames).
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

// sioConn is a live Socket.IO session for one tab, speaking the Engine.IO v4
// text framing over a plain WebSocket.
type sioConn struct {
	m      *Manager
	tabID  string
	conn   *websocket.Conn
	url    string
	events map[string]bool // listener set captured at connect time

	closeOnce sync.Once
	writeMu   sync.Mutex
}

// connectSocketIO dials the Socket.IO endpoint and installs the session. The
// tab flips to connected only once the server acknowledges the namespace
// connect.
func (m *Manager) connectSocketIO(ctx context.Context, tabID string) error {
	tab, ok := m.Store.Get(tabID)
	if !ok || tab.Realtime == nil {
		return fmt.Errorf("no realtime tab %q", tabID)
	}

	endpoint, err := socketIOEndpoint(m.sessionURL(tab.Realtime.URL))
	if err != nil {
		m.appendLog(tabID, types.LogEntry{
			Type:      types.LogError,
			Direction: types.DirectionSystem,
			Data:      err.Error(),
		})
		return err
	}

	conn, resp, err := m.Dialer.DialContext(ctx, endpoint, nil)
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

	// The listener set is fixed at connect time: every enabled custom event
	// plus the default message event.
	events := map[string]bool{"message": true}
	if tab.Realtime.SocketIO != nil {
		for _, sub := range tab.Realtime.SocketIO.Events {
			if sub.Enabled {
				events[sub.Name] = true
			}
		}
	}

	sio := &sioConn{m: m, tabID: tabID, conn: conn, url: endpoint, events: events}
	m.register(tabID, sio)

	m.Store.Apply(tabID, func(t *types.Tab) {
		t.Realtime.Messages = nil
		t.Realtime.MessageCount = 0
	})

	go sio.readLoop()
	return nil
}

// socketIOEndpoint appends the Engine.IO handshake path and query to a ws(s)
// base URL, keeping any custom path the user configured.
func socketIOEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid Socket.IO URL %q: %w", raw, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Send emits the default message event with one text argument.
func (c *sioConn) Send(text string) error {
	return c.Emit("message", []types.SocketIOArg{{Value: text, Format: "text"}})
}

// Emit sends a Socket.IO event, logging it optimistically before the write.
// Arguments in json format are parsed leniently, falling back to the raw
// string when unparseable.
func (c *sioConn) Emit(event string, args []types.SocketIOArg) error {
	packet := make([]any, 0, len(args)+1)
	packet = append(packet, event)
	for _, arg := range args {
		packet = append(packet, decodeArg(arg))
	}
	encoded, err := json.Marshal(packet)
	if err != nil {
		return fmt.Errorf("failed to encode event %q: %w", event, err)
	}

	c.m.appendLog(c.tabID, types.LogEntry{
		Type:      types.LogEvent,
		Direction: types.DirectionSent,
		Event:     event,
		Data:      string(encoded),
	})

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, append([]byte("42"), encoded...))
}

// decodeArg turns one emit argument into its wire value.
func decodeArg(arg types.SocketIOArg) any {
	if arg.Format != "json" {
		return arg.Value
	}
	var v any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(arg.Value)), &v); err != nil {
		return arg.Value
	}
	return v
}

// Close sends the namespace disconnect and finalizes the session.
func (c *sioConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.TextMessage, []byte("41"))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.finalize()
	return err
}

// readLoop drives the Engine.IO handshake and pumps events into the tab log.
func (c *sioConn) readLoop() {
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case eioOpen:
			// Handshake received; request the default namespace.
			c.writeMu.Lock()
			err = c.conn.WriteMessage(websocket.TextMessage, []byte("40"))
			c.writeMu.Unlock()
			if err != nil {
				c.finalize()
				return
			}

		case eioPing:
			c.writeMu.Lock()
			_ = c.conn.WriteMessage(websocket.TextMessage, []byte{eioPong})
			c.writeMu.Unlock()

		case eioClose:
			c.finalize()
			return

		case eioMessage:
			c.handleMessage(frame[1:])
		}
	}
	c.finalize()
}

// handleMessage processes one Socket.IO packet (the payload after the
// Engine.IO message byte).
func (c *sioConn) handleMessage(packet []byte) {
	if len(packet) == 0 {
		return
	}
	switch packet[0] {
	case sioConnect:
		c.m.Store.Apply(c.tabID, func(t *types.Tab) {
			t.Realtime.URL = c.url
			t.Realtime.Connected = true
			t.Realtime.ConnectedAt = c.m.Now()
		})
		c.m.appendLog(c.tabID, types.LogEntry{
			Type:      types.LogConnection,
			Direction: types.DirectionSystem,
			Data:      "Connected to " + c.url,
		})

	case sioConnectError:
		c.m.appendLog(c.tabID, types.LogEntry{
			Type:      types.LogError,
			Direction: types.DirectionSystem,
			Data:      "connect_error: " + string(packet[1:]),
		})

	case sioDisconnect:
		c.finalize()

	case sioEvent:
		c.handleEvent(packet[1:])
	}
}

// handleEvent decodes a 42 packet and logs it when its event name is in the
// listener set.
func (c *sioConn) handleEvent(payload []byte) {
	var parts []json.RawMessage
	if err := json.Unmarshal(payload, &parts); err != nil || len(parts) == 0 {
		return
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return
	}
	if !c.events[name] {
		return
	}

	data := ""
	switch len(parts) {
	case 1:
	case 2:
		data = string(parts[1])
	default:
		rest, err := json.Marshal(parts[1:])
		if err == nil {
			data = string(rest)
		}
	}

	c.m.appendLog(c.tabID, types.LogEntry{
		Type:      types.LogEvent,
		Direction: types.DirectionReceived,
		Event:     name,
		Data:      data,
	})
}

// finalize appends the closing entry, flips the tab to disconnected, persists
// the session and releases the registry slot.
func (c *sioConn) finalize() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		c.m.appendLog(c.tabID, types.LogEntry{
			Type:      types.LogConnection,
			Direction: types.DirectionSystem,
			Data:      closeText(0),
		})
		c.m.Store.Apply(c.tabID, func(t *types.Tab) {
			t.Realtime.Connected = false
		})
		c.m.persistSession(c.tabID)
		c.m.unregister(c.tabID, c)
	})
}
