/*
Package realtime manages WebSocket and Socket.IO session lifecycles per tab.

# Connection registry

The Manager holds at most one live handle per tab id. Connecting a tab that
already holds a handle closes and discards the prior one before the new
connection is installed, so a rapid reconnect never leaks a socket.

# Session log

Every lifecycle transition and message becomes a LogEntry appended to the
tab's message log through the tab store, so interleaved async events always
merge against the latest state:

  - a system "connection" entry on open and on close (with the close code)
  - a "sent" entry appended optimistically on every send/emit
  - a "received" entry per inbound message or subscribed event

# Socket.IO

Socket.IO tabs speak the Engine.IO v4 text framing over the same
gorilla/websocket dial: the open handshake, the "40" namespace connect,
ping/pong keepalive, and "42" event packets. The listener set is captured
from the tab's enabled custom events at connect time.

# Teardown

Disconnecting (or losing) a connection finalizes the session exactly once:
the closing log entry is appended, the tab flips to disconnected, and a
summary entry (message count, duration, serialized log) is persisted to
history. History failures are logged and swallowed.
*/
package realtime
