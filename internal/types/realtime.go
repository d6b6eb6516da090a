package types

import "time"

// LogType classifies one entry in a realtime session log.
type LogType string

const (
	LogMessage    LogType = "message"
	LogConnection LogType = "connection"
	LogError      LogType = "error"
	LogEvent      LogType = "event"
)

// Direction tags who produced a log entry.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionSystem   Direction = "system"
)

// LogEntry is one message, event or lifecycle notice in a session log.
type LogEntry struct {
	Type      LogType   `json:"type"`
	Direction Direction `json:"direction"`
	Data      string    `json:"data"`
	Event     string    `json:"event,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RealtimeState holds the connection state and message log of a WebSocket or
// Socket.IO tab.
type RealtimeState struct {
	URL          string
	Connected    bool
	Messages     []LogEntry
	Pending      string // outgoing text being edited
	MessageCount int
	ConnectedAt  time.Time

	SocketIO *SocketIOState // nil for plain WebSocket tabs
}

// SocketIOState carries the Socket.IO specific editor fields.
type SocketIOState struct {
	EventName string        // event name for the next emit
	Events    []EventSub    // custom events to listen for
	Args      []SocketIOArg // arguments for the next emit
}

// EventSub is a custom event subscription declared on a Socket.IO tab.
type EventSub struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// SocketIOArg is one emit argument. Format "json" attempts JSON parsing before
// emit, falling back to the raw string.
type SocketIOArg struct {
	Value  string `json:"value"`
	Format string `json:"format"` // "text" or "json"
}
