// Package agent talks to the local companion agent that executes requests
// against localhost and private-network targets the remote proxy cannot reach.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/apicove/apicove/internal/types"
)

const (
	// DefaultBaseURL is where the companion agent listens.
	DefaultBaseURL = "http://127.0.0.1:8889"

	probeInterval   = 30 * time.Second
	probeTimeout    = 2 * time.Second
	explicitTimeout = 5 * time.Second
)

// privateHostPattern is the fallback classifier for strings net/url cannot
// parse: loopback, RFC 1918 ranges, and .local hosts.
var privateHostPattern = regexp.MustCompile(`(?i)(^|//)(localhost|127\.\d+\.\d+\.\d+|0\.0\.0\.0|\[?::1\]?|10\.\d+\.\d+\.\d+|172\.(1[6-9]|2\d|3[01])\.\d+\.\d+|192\.168\.\d+\.\d+|[a-z0-9.-]+\.local)([:/]|$)`)

// Service is the agent client. It carries availability, permission and
// last-probe state explicitly instead of hiding them in package globals.
type Service struct {
	baseURL        string
	client         *http.Client
	permissionPath string

	mu                sync.Mutex
	available         bool
	permissionGranted bool
	lastProbe         time.Time
}

// NewService creates an agent client. permissionPath is an optional file used
// to remember that local-network access was granted; empty disables
// persistence.
func NewService(baseURL, permissionPath string) *Service {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &Service{
		baseURL:        baseURL,
		client:         &http.Client{},
		permissionPath: permissionPath,
	}
	s.loadPermission()
	return s
}

// RequiresAgent reports whether url targets localhost, a private network or a
// .local host, which only the local agent can reach.
func RequiresAgent(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return privateHostPattern.MatchString(rawURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "0.0.0.0" || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified()
	}
	return false
}

// CheckAvailability probes GET /health. explicit uses the longer timeout for
// user-initiated permission checks. A successful probe also records the
// permission grant so the user is not re-prompted.
func (s *Service) CheckAvailability(ctx context.Context, explicit bool) bool {
	timeout := probeTimeout
	if explicit {
		timeout = explicitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok := s.probe(ctx)

	s.mu.Lock()
	s.available = ok
	s.lastProbe = time.Now()
	if ok && !s.permissionGranted {
		s.permissionGranted = true
		s.savePermissionLocked()
	}
	s.mu.Unlock()

	return ok
}

// Available reports the result of the most recent probe, re-probing when the
// last one is older than the probe interval.
func (s *Service) Available(ctx context.Context) bool {
	s.mu.Lock()
	fresh := time.Since(s.lastProbe) < probeInterval
	available := s.available
	s.mu.Unlock()

	if fresh {
		return available
	}
	return s.CheckAvailability(ctx, false)
}

// PermissionGranted reports whether a successful probe has ever been recorded.
func (s *Service) PermissionGranted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionGranted
}

// StartProbing re-probes the agent every probe interval until ctx is done.
func (s *Service) StartProbing(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckAvailability(ctx, false)
			}
		}
	}()
}

// Execute POSTs the payload to the agent's execute endpoint.
func (s *Service) Execute(ctx context.Context, payload *types.ExecutePayload) (*types.TransportResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent execute failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("agent returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result types.TransportResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}
	return &result, nil
}

func (s *Service) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}

func (s *Service) loadPermission() {
	if s.permissionPath == "" {
		return
	}
	data, err := os.ReadFile(s.permissionPath)
	if err != nil {
		return
	}
	var state struct {
		PermissionGranted bool `json:"permission_granted"`
	}
	if json.Unmarshal(data, &state) == nil {
		s.permissionGranted = state.PermissionGranted
	}
}

func (s *Service) savePermissionLocked() {
	if s.permissionPath == "" {
		return
	}
	data, _ := json.Marshal(map[string]bool{"permission_granted": true})
	_ = os.WriteFile(s.permissionPath, data, 0644)
}
