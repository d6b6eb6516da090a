package executor

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/apicove/apicove/internal/prepare"
	"github.com/apicove/apicove/internal/sigv4"
	"github.com/apicove/apicove/internal/transport"
	"github.com/apicove/apicove/internal/types"
)

// Dispatcher executes a prepared payload. Satisfied by transport.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload *types.ExecutePayload) (*types.TransportResponse, error)
}

// HistorySink persists executed requests. Persistence failures are logged,
// never surfaced.
type HistorySink interface {
	Save(entry *types.HistoryEntry) error
}

// Executor runs the full send path for an HTTP tab: prepare, serialize, sign,
// dispatch, then fold the result back into the tab and history.
type Executor struct {
	Preparer   *prepare.Preparer
	Signer     *sigv4.Signer
	Dispatcher Dispatcher
	History    HistorySink
	Now        func() time.Time
}

// New wires an executor from its parts.
func New(p *prepare.Preparer, d *transport.Dispatcher, h HistorySink) *Executor {
	return &Executor{
		Preparer:   p,
		Signer:     sigv4.New(),
		Dispatcher: d,
		History:    h,
		Now:        time.Now,
	}
}

// Execute sends the tab's request. Errors never propagate: they land in
// tab.HTTP.Error and the response stays nil. A history entry is written only
// on success.
func (e *Executor) Execute(ctx context.Context, tab *types.Tab) {
	if tab.HTTP == nil {
		return
	}
	h := tab.HTTP
	h.Error = ""
	h.Response = nil

	prepared, err := e.Preparer.Prepare(ctx, tab)
	if err != nil {
		h.Error = err.Error()
		return
	}

	body, err := e.Preparer.SerializeBody(ctx, tab)
	if err != nil {
		h.Error = err.Error()
		return
	}

	if body.ContentType != "" && !prepare.HasHeader(prepared.Headers, "Content-Type") {
		prepared.Headers["Content-Type"] = body.ContentType
	}

	// AWS signing runs only now: the payload hash needs the final body.
	if h.Auth.Type == types.AuthAWS {
		creds := sigv4.CredentialsFromAuthData(h.Auth.Data, e.Preparer.Resolver.Resolve)
		prepared.Headers = e.Signer.Sign(h.Method, prepared.URL, prepared.Headers, body.Content, creds)
	}

	payload := &types.ExecutePayload{
		Method:   h.Method,
		URL:      prepared.URL,
		Headers:  prepared.Headers,
		Body:     body.Content,
		FormData: body.FormData,
		AuthType: string(h.Auth.Type),
		AuthData: h.Auth.Data,
	}

	start := e.Now()
	resp, err := e.Dispatcher.Dispatch(ctx, payload)
	elapsed := e.Now().Sub(start).Milliseconds()

	if err != nil {
		h.Error = err.Error()
		return
	}

	h.Response = &types.Response{
		Status:     resp.Status,
		StatusText: resp.StatusText,
		Headers:    resp.Headers,
		Body:       resp.Body,
		TimeMS:     elapsed,
		Size:       len(resp.Body),
	}
	if cookie, ok := resp.Headers["Set-Cookie"]; ok {
		h.Response.Cookies = []string{cookie}
	}
	h.ResponseView = "pretty"

	if e.History != nil {
		if err := e.History.Save(e.historyEntry(tab, payload, h.Response)); err != nil {
			log.Printf("history save failed: %v", err)
		}
	}
}

// historyEntry snapshots the executed request and its response.
func (e *Executor) historyEntry(tab *types.Tab, payload *types.ExecutePayload, resp *types.Response) *types.HistoryEntry {
	h := tab.HTTP
	return &types.HistoryEntry{
		ID:              uuid.NewString(),
		RequestType:     string(tab.Kind),
		Method:          h.Method,
		URL:             payload.URL,
		Headers:         mustJSON(payload.Headers),
		Params:          mustJSON(enabledPairs(h.Params)),
		AuthType:        string(h.Auth.Type),
		AuthData:        mustJSON(h.Auth.Data),
		BodyType:        string(h.Body.Type),
		BodyMeta:        mustJSON(bodyMeta(h.Body)),
		Body:            payload.Body,
		Status:          resp.Status,
		StatusText:      resp.StatusText,
		ResponseHeaders: mustJSON(resp.Headers),
		ResponseBody:    resp.Body,
		ResponseTime:    resp.TimeMS,
		ResponseSize:    resp.Size,
		WorkspaceID:     tab.WorkspaceID,
		CreatedAt:       e.Now().UTC().Format(time.RFC3339),
	}
}

// bodyMeta collects type-specific body fields that have no first-class
// history column.
func bodyMeta(body types.Body) map[string]any {
	meta := map[string]any{}
	switch body.Type {
	case types.BodyGraphQL:
		meta["query"] = body.GraphQL.Query
		meta["variables"] = body.GraphQL.Variables
	case types.BodyFormData:
		meta["form"] = body.Form
	case types.BodyURLEncoded:
		meta["urlencoded"] = body.URLEncoded
	case types.BodyBinary:
		meta["binaryPath"] = body.BinaryPath
	}
	return meta
}

func enabledPairs(kvs []types.KV) map[string]string {
	pairs := map[string]string{}
	for _, kv := range kvs {
		if kv.Enabled {
			pairs[kv.Key] = kv.Value
		}
	}
	return pairs
}

// mustJSON renders v as JSON, falling back to an empty object. History JSON
// columns must always hold valid JSON.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
