// Package agentclient is the coordinator's typed HTTP client to one
// host agent, per spec.md §4.10: a health check precedes every real
// request, and image pulls are deduplicated across a 5-second window.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/riftctl/rift/internal/agentproto"
	"github.com/riftctl/rift/internal/rifterr"
)

const healthCheckTimeout = 1 * time.Second

// Client talks to one agent's root HTTP endpoint, authenticated with a
// bearer passkey (spec.md §6's agent protocol).
type Client struct {
	addr    string
	passkey string
	http    *http.Client

	pullMu    sync.Mutex
	pullCache map[string]*pullCacheEntry
}

type pullCacheEntry struct {
	mu     sync.Mutex
	result agentproto.LogResponse
	ts     time.Time
}

func New(addr, passkey string) *Client {
	return &Client{
		addr:      addr,
		passkey:   passkey,
		http:      &http.Client{},
		pullCache: make(map[string]*pullCacheEntry),
	}
}

// Health performs the cheap 1s-timeout GetHealth request, distinguishing
// "agent unreachable" from "agent rejected the request".
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	var out agentproto.HealthResponse
	return c.do(ctx, agentproto.Request{Type: agentproto.ReqGetHealth, Params: agentproto.GetHealthParams{}}, &out)
}

// Do performs req against the agent after a health check, decoding the
// response into out.
func (c *Client) Do(ctx context.Context, req agentproto.Request, out interface{}) error {
	if err := c.Health(ctx); err != nil {
		return rifterr.Wrap(rifterr.KindUpstream, err, "agent %s unreachable", c.addr)
	}
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req agentproto.Request, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return rifterr.Wrap(rifterr.KindInternal, err, "marshal agent request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr, bytes.NewReader(body))
	if err != nil {
		return rifterr.Wrap(rifterr.KindInternal, err, "build agent request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.passkey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return rifterr.Wrap(rifterr.KindUpstream, err, "agent request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return rifterr.Wrap(rifterr.KindUpstream, err, "read agent response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var agentErr agentproto.ErrorResponse
		_ = json.Unmarshal(respBody, &agentErr)
		return rifterr.New(rifterr.KindUpstream, "agent returned %d: %s", resp.StatusCode, agentErr.Message)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return rifterr.Wrap(rifterr.KindUpstream, err, "decode agent response")
	}
	return nil
}

// Version reports the agent's build version, used by the monitor
// loop's first per-tick query (spec.md §4.9 step 1).
func (c *Client) Version(ctx context.Context) (string, error) {
	var out agentproto.VersionResponse
	if err := c.Do(ctx, agentproto.Request{Type: agentproto.ReqGetVersion, Params: agentproto.GetVersionParams{}}, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Stats returns the host's all-system-stats snapshot (spec.md §4.9
// step 2).
func (c *Client) Stats(ctx context.Context) (agentproto.StatsResponse, error) {
	var out agentproto.StatsResponse
	err := c.Do(ctx, agentproto.Request{Type: agentproto.ReqGetStats, Params: agentproto.GetStatsParams{}}, &out)
	return out, err
}

// Containers lists every container the agent currently knows about
// (spec.md §4.9 step 3).
func (c *Client) Containers(ctx context.Context) ([]agentproto.ContainerStatus, error) {
	var out agentproto.ContainerListResponse
	err := c.Do(ctx, agentproto.Request{Type: agentproto.ReqListContainers, Params: agentproto.ListContainersParams{}}, &out)
	return out.Containers, err
}

// pullDedupeWindow collapses fan-out bursts of the same image pull
// (e.g. a sync deploying twenty services off one image) into a single
// network operation (spec.md §4.10).
const pullDedupeWindow = 5000 * time.Millisecond

// PullImage performs (or reuses a cached result for) pulling name on
// the agent's host, keyed per-image-name with its own lock so unrelated
// images pull concurrently.
func (c *Client) PullImage(ctx context.Context, name string) (agentproto.LogResponse, error) {
	entry := c.pullEntry(name)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if time.Since(entry.ts) < pullDedupeWindow {
		return entry.result, nil
	}

	var out agentproto.LogResponse
	err := c.Do(ctx, agentproto.Request{Type: agentproto.ReqPullImage, Params: agentproto.PullImageParams{Image: name}}, &out)
	if err != nil {
		return out, err
	}
	entry.result = out
	entry.ts = time.Now()
	return out, nil
}

// pullEntry returns the single, shared cache entry for name, creating
// it under the map lock on first use so every caller for the same
// image name contends on the same per-name mutex.
func (c *Client) pullEntry(name string) *pullCacheEntry {
	c.pullMu.Lock()
	defer c.pullMu.Unlock()
	e, ok := c.pullCache[name]
	if !ok {
		e = &pullCacheEntry{}
		c.pullCache[name] = e
	}
	return e
}
