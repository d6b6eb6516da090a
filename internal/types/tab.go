package types

import "github.com/google/uuid"

// Kind identifies which protocol a tab speaks. It selects which of the
// per-protocol sub-structs on Tab is meaningful.
type Kind string

const (
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "websocket"
	KindSocketIO  Kind = "socketio"
)

// BodyType identifies how an HTTP request body is serialized.
type BodyType string

const (
	BodyNone       BodyType = "none"
	BodyJSON       BodyType = "json"
	BodyXML        BodyType = "xml"
	BodyText       BodyType = "text"
	BodyGraphQL    BodyType = "graphql"
	BodyFormData   BodyType = "form-data"
	BodyURLEncoded BodyType = "urlencoded"
	BodyBinary     BodyType = "binary"
)

// AuthType identifies the authentication scheme applied to an HTTP request.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api-key"
	AuthOAuth2 AuthType = "oauth2"
	AuthAWS    AuthType = "aws"
)

// Tab is one open request editor. Shared identity fields live here; the
// protocol-specific state hangs off HTTP or Realtime depending on Kind.
type Tab struct {
	ID             string
	Name           string
	Kind           Kind
	WorkspaceID    string
	Saved          bool
	SavedRequestID string

	HTTP     *HTTPState
	Realtime *RealtimeState
}

// NewHTTPTab creates an empty HTTP tab with defaults.
func NewHTTPTab() *Tab {
	return &Tab{
		ID:   uuid.NewString(),
		Kind: KindHTTP,
		HTTP: &HTTPState{
			Method: "GET",
			Body:   Body{Type: BodyNone},
			Auth:   Auth{Type: AuthNone},
		},
	}
}

// NewRealtimeTab creates an empty WebSocket or Socket.IO tab.
func NewRealtimeTab(kind Kind) *Tab {
	t := &Tab{
		ID:       uuid.NewString(),
		Kind:     kind,
		Realtime: &RealtimeState{},
	}
	if kind == KindSocketIO {
		t.Realtime.SocketIO = &SocketIOState{EventName: "message"}
	}
	return t
}

// KV is an ordered key/value pair for params, headers and url-encoded bodies.
type KV struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// HTTPState holds the editable fields and last response of an HTTP tab.
type HTTPState struct {
	Method  string
	URL     string
	Params  []KV
	Headers []KV
	Body    Body
	Auth    Auth

	Response *Response
	// ResponseView is which response rendering the UI shows; reset to
	// "pretty" after every successful send.
	ResponseView string
	Error        string
}

// Body carries one payload field per body type; Type selects which is used.
type Body struct {
	Type       BodyType
	Raw        string // json, xml, text
	GraphQL    GraphQLBody
	Form       []FormField
	URLEncoded []KV
	BinaryPath string
}

// GraphQLBody is a query plus its variables as a raw JSON string.
type GraphQLBody struct {
	Query     string `json:"query"`
	Variables string `json:"variables,omitempty"`
}

// FormField is one multipart form entry. File-typed entries reference a path
// on disk that is read at send time.
type FormField struct {
	Key      string `json:"key"`
	Value    string `json:"value,omitempty"`
	FilePath string `json:"filePath,omitempty"`
	IsFile   bool   `json:"isFile,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// Auth is the authentication scheme and its loosely-shaped data bag. The keys
// used per type: bearer(token), basic(username,password), api-key(key,value,
// addTo), oauth2(accessToken,tokenType,tokenUrl,clientId,clientSecret,scope),
// aws(accessKey,secretKey,region,service,sessionToken).
type Auth struct {
	Type AuthType
	Data map[string]string
}

// Response is the normalized result of a dispatched HTTP request.
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Cookies    []string
	Body       string

	// TimeMS is wall-clock milliseconds from just before dispatch to just
	// after. Size is len() of the body string, an approximation rather than
	// a decoded byte count.
	TimeMS int64
	Size   int
}
