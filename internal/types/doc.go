/*
Package types defines the shared data model for the request-building core.

# Tabs

A Tab is one open request editor. Instead of a single flat record with dozens
of optional fields, the protocol-specific state is split into sub-structs
selected by Kind:

  - KindHTTP uses Tab.HTTP (method, URL, params, headers, body, auth, response)
  - KindWebSocket and KindSocketIO use Tab.Realtime (connection state, log)

Shared bookkeeping (id, name, saved state) stays on Tab itself.

# Environments

An Environment bundles a base URL with a variable map. Variable resolution
gives environment variables precedence over workspace-global variables; see
the resolver package.

# History

HistoryEntry mirrors the persisted history schema: snake_case field names with
JSON-string bags for structured columns. The mapper package owns conversion
between tabs and persisted records.
*/
package types
