package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/apicove/apicove/internal/types"
)

func TestRequiresAgent(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"http://192.168.1.5/api", true},
		{"https://api.example.com", false},
		{"http://10.0.0.1", true},
		{"http://8.8.8.8", false},
		{"http://localhost:3000/users", true},
		{"http://127.0.0.1:8080", true},
		{"http://0.0.0.0:9000", true},
		{"http://[::1]:8080/x", true},
		{"http://172.16.0.10/health", true},
		{"http://172.32.0.1", false},
		{"http://printer.local/status", true},
		{"ws://192.168.0.2/socket", true},
		{"wss://echo.websocket.org", false},
	}
	for _, tc := range cases {
		if got := RequiresAgent(tc.url); got != tc.want {
			t.Errorf("RequiresAgent(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestRequiresAgent_RegexFallback(t *testing.T) {
	// Strings that fail URL parsing should still classify via the raw text.
	cases := []struct {
		url  string
		want bool
	}{
		{"http://192.168.1.5:80:80/bad", true},
		{"http://api.example.com:80:80/bad", false},
		{"localhost:3000", true},
	}
	for _, tc := range cases {
		if got := RequiresAgent(tc.url); got != tc.want {
			t.Errorf("RequiresAgent(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestCheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	s := NewService(server.URL, filepath.Join(t.TempDir(), "perm.json"))

	if !s.CheckAvailability(context.Background(), true) {
		t.Fatal("Expected agent to be available")
	}
	if !s.PermissionGranted() {
		t.Error("Expected permission to be remembered after a successful probe")
	}
	if !s.Available(context.Background()) {
		t.Error("Expected cached availability within the probe interval")
	}
}

func TestCheckAvailability_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
	}))
	defer server.Close()

	s := NewService(server.URL, "")
	if s.CheckAvailability(context.Background(), false) {
		t.Error("Expected non-ok status to count as unavailable")
	}
}

func TestCheckAvailability_Unreachable(t *testing.T) {
	s := NewService("http://127.0.0.1:1", "")
	if s.CheckAvailability(context.Background(), false) {
		t.Error("Expected unreachable agent to be unavailable")
	}
}

func TestPermissionPersistence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "perm.json")
	first := NewService(server.URL, path)
	first.CheckAvailability(context.Background(), true)

	second := NewService(server.URL, path)
	if !second.PermissionGranted() {
		t.Error("Expected permission grant to survive restarts")
	}
}

func TestExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			http.NotFound(w, r)
			return
		}
		var payload types.ExecutePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(types.TransportResponse{
			Status:     200,
			StatusText: "OK",
			Headers:    map[string]string{"X-Echo-Method": payload.Method},
			Body:       `{"ok":true}`,
		})
	}))
	defer server.Close()

	s := NewService(server.URL, "")
	resp, err := s.Execute(context.Background(), &types.ExecutePayload{
		Method: "POST",
		URL:    "http://192.168.1.5/api",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Status != 200 || resp.Headers["X-Echo-Method"] != "POST" {
		t.Errorf("Expected echoed response, got: %+v", resp)
	}
}

func TestExecute_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	s := NewService(server.URL, "")
	if _, err := s.Execute(context.Background(), &types.ExecutePayload{}); err == nil {
		t.Error("Expected error on non-2xx agent response")
	}
}
