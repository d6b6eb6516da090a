// Package transport dispatches prepared requests through the local agent or
// the remote execution proxy and normalizes the response shape.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apicove/apicove/internal/agent"
	"github.com/apicove/apicove/internal/types"
)

// ErrAgentUnavailable is wrapped into the error returned when a
// private-network target needs the local agent and it cannot be reached.
var ErrAgentUnavailable = fmt.Errorf("local agent unavailable")

// Dispatcher routes execute payloads. Private-network targets must go through
// the agent; everything else goes to the remote proxy.
type Dispatcher struct {
	Agent    *agent.Service
	ProxyURL string // API base, e.g. https://api.apicove.dev
	client   *http.Client
}

// New creates a dispatcher over the given agent client and proxy base URL.
func New(agentSvc *agent.Service, proxyURL string) *Dispatcher {
	return &Dispatcher{
		Agent:    agentSvc,
		ProxyURL: strings.TrimRight(proxyURL, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Dispatch executes the payload and returns the normalized response.
func (d *Dispatcher) Dispatch(ctx context.Context, payload *types.ExecutePayload) (*types.TransportResponse, error) {
	if agent.RequiresAgent(payload.URL) {
		if d.Agent == nil {
			return nil, fmt.Errorf("%w: %s targets a private network; start the local agent to reach it", ErrAgentUnavailable, payload.URL)
		}
		// Immediate recheck before failing: the cached probe may be stale.
		if !d.Agent.Available(ctx) && !d.Agent.CheckAvailability(ctx, true) {
			return nil, fmt.Errorf("%w: %s targets a private network the remote proxy cannot reach; start the local agent and try again", ErrAgentUnavailable, payload.URL)
		}
		return d.Agent.Execute(ctx, payload)
	}
	return d.executeProxy(ctx, payload)
}

func (d *Dispatcher) executeProxy(ctx context.Context, payload *types.ExecutePayload) (*types.TransportResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ProxyURL+"/requests/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy execute failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxy returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result types.TransportResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode proxy response: %w", err)
	}
	return &result, nil
}
