// Package mapper converts between the in-memory Tab and the flat snake_case
// record used at the persistence and sharing boundary. The record is the only
// place the flat shape exists; everything past this boundary works on Tab.
package mapper

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"

	"github.com/apicove/apicove/internal/types"
)

// Record is the flat persisted shape of a request. Fields without a
// first-class column travel inside the BodyMeta JSON envelope.
type Record struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RequestType string `json:"request_type"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	Headers     string `json:"headers"`
	Params      string `json:"params"`
	AuthType    string `json:"auth_type"`
	AuthData    string `json:"auth_data"`
	BodyType    string `json:"body_type"`
	Body        string `json:"body"`
	BodyMeta    string `json:"body_meta"`
	WorkspaceID string `json:"workspace_id"`
}

// metaEnvelope is the body_meta payload. Every field is optional; which ones
// are set depends on the record's request and body type.
type metaEnvelope struct {
	Form             []types.FormField   `json:"form,omitempty"`
	URLEncoded       []types.KV          `json:"urlencoded,omitempty"`
	GraphQLVariables string              `json:"graphqlVariables,omitempty"`
	BinaryPath       string              `json:"binaryPath,omitempty"`
	Messages         []types.LogEntry    `json:"messages,omitempty"`
	MessageCount     int                 `json:"messageCount,omitempty"`
	EventName        string              `json:"eventName,omitempty"`
	Events           []types.EventSub    `json:"events,omitempty"`
	Args             []types.SocketIOArg `json:"args,omitempty"`
}

// Encode flattens a Tab into a persisted record. Volatile state (response,
// connection flags) is not carried.
func Encode(tab *types.Tab) (*Record, error) {
	rec := &Record{
		ID:          tab.SavedRequestID,
		Name:        tab.Name,
		RequestType: string(tab.Kind),
		WorkspaceID: tab.WorkspaceID,
		Headers:     "[]",
		Params:      "[]",
		AuthType:    string(types.AuthNone),
		AuthData:    "{}",
		BodyType:    string(types.BodyNone),
		BodyMeta:    "{}",
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	var meta metaEnvelope

	switch tab.Kind {
	case types.KindHTTP:
		if tab.HTTP == nil {
			return nil, fmt.Errorf("http tab %q has no http state", tab.ID)
		}
		h := tab.HTTP
		rec.Method = h.Method
		rec.URL = h.URL
		rec.Headers = mustJSON(orEmptyKV(h.Headers))
		rec.Params = mustJSON(orEmptyKV(h.Params))
		rec.AuthType = string(h.Auth.Type)
		if len(h.Auth.Data) > 0 {
			rec.AuthData = mustJSON(h.Auth.Data)
		}
		rec.BodyType = string(h.Body.Type)
		switch h.Body.Type {
		case types.BodyJSON, types.BodyXML, types.BodyText:
			rec.Body = h.Body.Raw
		case types.BodyGraphQL:
			rec.Body = h.Body.GraphQL.Query
			meta.GraphQLVariables = h.Body.GraphQL.Variables
		case types.BodyFormData:
			meta.Form = h.Body.Form
		case types.BodyURLEncoded:
			meta.URLEncoded = h.Body.URLEncoded
		case types.BodyBinary:
			meta.BinaryPath = h.Body.BinaryPath
		}

	case types.KindWebSocket, types.KindSocketIO:
		if tab.Realtime == nil {
			return nil, fmt.Errorf("realtime tab %q has no realtime state", tab.ID)
		}
		r := tab.Realtime
		rec.URL = r.URL
		meta.Messages = r.Messages
		meta.MessageCount = r.MessageCount
		if r.SocketIO != nil {
			meta.EventName = r.SocketIO.EventName
			meta.Events = r.SocketIO.Events
			meta.Args = r.SocketIO.Args
		}

	default:
		return nil, fmt.Errorf("unknown tab kind %q", tab.Kind)
	}

	rec.BodyMeta = mustJSON(meta)
	return rec, nil
}

// Decode rebuilds a Tab from a persisted record. The tab gets a fresh id and
// arrives marked saved; connection state and responses always start empty. A
// malformed body_meta bag is tolerated and its fields start at defaults.
func Decode(rec *Record) (*types.Tab, error) {
	kind := types.Kind(rec.RequestType)

	var meta metaEnvelope
	if rec.BodyMeta != "" {
		// Saved records may carry comments or trailing commas from hand
		// edits; fall back to defaults rather than failing the open.
		_ = json.Unmarshal(jsonc.ToJSON([]byte(rec.BodyMeta)), &meta)
	}

	tab := &types.Tab{
		ID:             uuid.NewString(),
		Name:           rec.Name,
		Kind:           kind,
		WorkspaceID:    rec.WorkspaceID,
		Saved:          true,
		SavedRequestID: rec.ID,
	}

	switch kind {
	case types.KindHTTP:
		h := &types.HTTPState{
			Method: rec.Method,
			URL:    rec.URL,
			Body:   types.Body{Type: types.BodyType(rec.BodyType)},
			Auth:   types.Auth{Type: types.AuthType(rec.AuthType)},
		}
		if h.Method == "" {
			h.Method = "GET"
		}
		if h.Body.Type == "" {
			h.Body.Type = types.BodyNone
		}
		if h.Auth.Type == "" {
			h.Auth.Type = types.AuthNone
		}
		_ = json.Unmarshal([]byte(rec.Headers), &h.Headers)
		_ = json.Unmarshal([]byte(rec.Params), &h.Params)
		if rec.AuthData != "" {
			_ = json.Unmarshal([]byte(rec.AuthData), &h.Auth.Data)
		}
		if h.Auth.Data == nil {
			h.Auth.Data = make(map[string]string)
		}
		switch h.Body.Type {
		case types.BodyJSON, types.BodyXML, types.BodyText:
			h.Body.Raw = rec.Body
		case types.BodyGraphQL:
			h.Body.GraphQL = types.GraphQLBody{
				Query:     rec.Body,
				Variables: meta.GraphQLVariables,
			}
		case types.BodyFormData:
			h.Body.Form = meta.Form
		case types.BodyURLEncoded:
			h.Body.URLEncoded = meta.URLEncoded
		case types.BodyBinary:
			h.Body.BinaryPath = meta.BinaryPath
		}
		tab.HTTP = h

	case types.KindWebSocket, types.KindSocketIO:
		r := &types.RealtimeState{
			URL:          rec.URL,
			Messages:     meta.Messages,
			MessageCount: meta.MessageCount,
		}
		if kind == types.KindSocketIO {
			r.SocketIO = &types.SocketIOState{
				EventName: meta.EventName,
				Events:    meta.Events,
				Args:      meta.Args,
			}
			if r.SocketIO.EventName == "" {
				r.SocketIO.EventName = "message"
			}
		}
		tab.Realtime = r

	default:
		return nil, fmt.Errorf("unknown request type %q", rec.RequestType)
	}

	return tab, nil
}

// EncodeShareLink serializes a Tab to a URL-safe share token:
// base64(percent-encoded JSON record).
func EncodeShareLink(tab *types.Tab) (string, error) {
	rec, err := Encode(tab)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal share record: %w", err)
	}
	escaped := strings.ReplaceAll(url.QueryEscape(string(data)), "+", "%20")
	return base64.StdEncoding.EncodeToString([]byte(escaped)), nil
}

// DecodeShareLink is the inverse of EncodeShareLink.
func DecodeShareLink(token string) (*types.Tab, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("failed to decode share token: %w", err)
	}
	unescaped, err := url.QueryUnescape(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to unescape share token: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(unescaped), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse share record: %w", err)
	}
	return Decode(&rec)
}

func orEmptyKV(kv []types.KV) []types.KV {
	if kv == nil {
		return []types.KV{}
	}
	return kv
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
