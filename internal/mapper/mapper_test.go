package mapper

import (
	"reflect"
	"testing"

	"github.com/apicove/apicove/internal/types"
)

func sampleHTTPTab() *types.Tab {
	tab := types.NewHTTPTab()
	tab.Name = "Create user"
	tab.WorkspaceID = "ws-1"
	tab.HTTP.Method = "POST"
	tab.HTTP.URL = "{{base}}/users"
	tab.HTTP.Headers = []types.KV{{Key: "Accept", Value: "application/json", Enabled: true}}
	tab.HTTP.Params = []types.KV{{Key: "verbose", Value: "1", Enabled: true}}
	tab.HTTP.Auth = types.Auth{
		Type: types.AuthBearer,
		Data: map[string]string{"token": "{{token}}"},
	}
	tab.HTTP.Body = types.Body{
		Type: types.BodyJSON,
		Raw:  `{"name":"ada"}`,
	}
	return tab
}

func TestRoundTrip_HTTP(t *testing.T) {
	tab := sampleHTTPTab()

	rec, err := Encode(tab)
	if err != nil {
		t.Fatalf("Expected encode to succeed, got: %v", err)
	}
	got, err := Decode(rec)
	if err != nil {
		t.Fatalf("Expected decode to succeed, got: %v", err)
	}

	if got.Name != tab.Name || got.WorkspaceID != tab.WorkspaceID || got.Kind != types.KindHTTP {
		t.Errorf("Expected identity fields to survive, got: %+v", got)
	}
	if !got.Saved || got.SavedRequestID != rec.ID {
		t.Errorf("Expected decoded tab marked saved with record link, got: %+v", got)
	}
	if got.ID == tab.ID {
		t.Error("Expected decoded tab to get a fresh id")
	}
	if got.HTTP.Method != "POST" || got.HTTP.URL != tab.HTTP.URL {
		t.Errorf("Expected request line to survive, got: %+v", got.HTTP)
	}
	if !reflect.DeepEqual(got.HTTP.Headers, tab.HTTP.Headers) {
		t.Errorf("Expected headers to survive, got: %+v", got.HTTP.Headers)
	}
	if !reflect.DeepEqual(got.HTTP.Params, tab.HTTP.Params) {
		t.Errorf("Expected params to survive, got: %+v", got.HTTP.Params)
	}
	if got.HTTP.Auth.Type != types.AuthBearer || got.HTTP.Auth.Data["token"] != "{{token}}" {
		t.Errorf("Expected auth to survive, got: %+v", got.HTTP.Auth)
	}
	if got.HTTP.Body.Raw != tab.HTTP.Body.Raw {
		t.Errorf("Expected body to survive, got: %q", got.HTTP.Body.Raw)
	}
}

func TestRoundTrip_GraphQLVariablesInMeta(t *testing.T) {
	tab := types.NewHTTPTab()
	tab.HTTP.Body = types.Body{
		Type: types.BodyGraphQL,
		GraphQL: types.GraphQLBody{
			Query:     `query { user(id: $id) { name } }`,
			Variables: `{"id": 7}`,
		},
	}

	rec, err := Encode(tab)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Body != tab.HTTP.Body.GraphQL.Query {
		t.Errorf("Expected query in body column, got: %q", rec.Body)
	}

	got, err := Decode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got.HTTP.Body.GraphQL.Variables != `{"id": 7}` {
		t.Errorf("Expected variables to round-trip through body_meta, got: %q", got.HTTP.Body.GraphQL.Variables)
	}
}

func TestRoundTrip_FormDataInMeta(t *testing.T) {
	tab := types.NewHTTPTab()
	tab.HTTP.Body = types.Body{
		Type: types.BodyFormData,
		Form: []types.FormField{
			{Key: "name", Value: "ada", Enabled: true},
			{Key: "avatar", FilePath: "/tmp/avatar.png", IsFile: true, Enabled: true},
		},
	}

	rec, err := Encode(tab)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.HTTP.Body.Form, tab.HTTP.Body.Form) {
		t.Errorf("Expected form fields to survive, got: %+v", got.HTTP.Body.Form)
	}
}

func TestRoundTrip_SocketIO(t *testing.T) {
	tab := types.NewRealtimeTab(types.KindSocketIO)
	tab.Realtime.URL = "wss://rt.example.com"
	tab.Realtime.SocketIO.EventName = "chat"
	tab.Realtime.SocketIO.Events = []types.EventSub{{Name: "update", Enabled: true}}
	tab.Realtime.SocketIO.Args = []types.SocketIOArg{{Value: `{"x":1}`, Format: "json"}}

	rec, err := Encode(tab)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != types.KindSocketIO || got.Realtime.URL != tab.Realtime.URL {
		t.Errorf("Expected realtime identity to survive, got: %+v", got)
	}
	if got.Realtime.Connected {
		t.Error("Expected decoded tab to start disconnected")
	}
	sio := got.Realtime.SocketIO
	if sio == nil || sio.EventName != "chat" ||
		!reflect.DeepEqual(sio.Events, tab.Realtime.SocketIO.Events) ||
		!reflect.DeepEqual(sio.Args, tab.Realtime.SocketIO.Args) {
		t.Errorf("Expected socket.io fields to survive, got: %+v", sio)
	}
}

func TestDecode_MalformedBodyMetaTolerated(t *testing.T) {
	rec := &Record{
		ID:          "r-1",
		RequestType: "http",
		Method:      "GET",
		URL:         "https://api.example.com",
		Headers:     "[]",
		Params:      "[]",
		BodyType:    "form-data",
		BodyMeta:    "{not json at all",
	}
	tab, err := Decode(rec)
	if err != nil {
		t.Fatalf("Expected malformed body_meta to be tolerated, got: %v", err)
	}
	if len(tab.HTTP.Body.Form) != 0 {
		t.Errorf("Expected empty form fields, got: %+v", tab.HTTP.Body.Form)
	}
}

func TestDecode_DefaultsForEmptyColumns(t *testing.T) {
	rec := &Record{ID: "r-1", RequestType: "http", URL: "https://api.example.com"}
	tab, err := Decode(rec)
	if err != nil {
		t.Fatal(err)
	}
	if tab.HTTP.Method != "GET" || tab.HTTP.Body.Type != types.BodyNone || tab.HTTP.Auth.Type != types.AuthNone {
		t.Errorf("Expected defaults for empty columns, got: %+v", tab.HTTP)
	}
}

func TestDecode_UnknownRequestType(t *testing.T) {
	if _, err := Decode(&Record{RequestType: "grpc"}); err == nil {
		t.Error("Expected error for unknown request type")
	}
}

func TestShareLink_RoundTrip(t *testing.T) {
	tab := sampleHTTPTab()

	token, err := EncodeShareLink(tab)
	if err != nil {
		t.Fatalf("Expected share encode to succeed, got: %v", err)
	}
	got, err := DecodeShareLink(token)
	if err != nil {
		t.Fatalf("Expected share decode to succeed, got: %v", err)
	}
	if got.HTTP.URL != tab.HTTP.URL || got.HTTP.Method != tab.HTTP.Method {
		t.Errorf("Expected shared request to survive, got: %+v", got.HTTP)
	}
	if got.HTTP.Body.Raw != tab.HTTP.Body.Raw {
		t.Errorf("Expected body to survive share link, got: %q", got.HTTP.Body.Raw)
	}
}

func TestShareLink_GarbageToken(t *testing.T) {
	if _, err := DecodeShareLink("not-base64!!"); err == nil {
		t.Error("Expected error for garbage token")
	}
}
