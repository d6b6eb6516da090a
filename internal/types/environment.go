package types

// Environment is a named bundle of base URL and variables. At most one
// environment is active at a time per workspace.
type Environment struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	BaseURL   string            `json:"baseUrl" yaml:"baseUrl"`
	Variables map[string]string `json:"variables" yaml:"variables"`
	IsActive  bool              `json:"isActive" yaml:"-"`
}

// HistoryEntry is one executed request or realtime session as persisted by the
// history sink. JSON-bag columns (Headers, Params, AuthData, BodyMeta,
// ResponseHeaders) always hold valid JSON, empty object/array when unset.
type HistoryEntry struct {
	ID              string `json:"id"`
	RequestType     string `json:"request_type"`
	Method          string `json:"method"`
	URL             string `json:"url"`
	Headers         string `json:"headers"`
	Params          string `json:"params"`
	AuthType        string `json:"auth_type"`
	AuthData        string `json:"auth_data"`
	BodyType        string `json:"body_type"`
	BodyMeta        string `json:"body_meta"`
	Body            string `json:"body"`
	Status          int    `json:"status"`
	StatusText      string `json:"status_text"`
	ResponseHeaders string `json:"response_headers"`
	ResponseBody    string `json:"response_body"`
	ResponseTime    int64  `json:"response_time"`
	ResponseSize    int    `json:"response_size"`
	WorkspaceID     string `json:"workspace_id"`
	CreatedAt       string `json:"created_at"`
}

// ExecutePayload is the request shape sent to the local agent and the remote
// execution proxy.
type ExecutePayload struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	Body     string            `json:"body,omitempty"`
	FormData []FormPart        `json:"formData,omitempty"`
	AuthType string            `json:"authType,omitempty"`
	AuthData map[string]string `json:"authData,omitempty"`
}

// TransportResponse is the normalized wire shape returned by both the local
// agent and the remote execution proxy.
type TransportResponse struct {
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// FormPart is one multipart entry with file content already read to base64.
type FormPart struct {
	Key           string `json:"key"`
	Value         string `json:"value,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	ContentBase64 string `json:"contentBase64,omitempty"`
	IsFile        bool   `json:"isFile,omitempty"`
}
