package agentclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/riftctl/rift/internal/agentproto"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthSucceedsAgainstFakeAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	require.NoError(t, c.Health(context.Background()))
}

func TestHealthFailsWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "secret")
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, rifterr.KindUpstream, rifterr.KindOf(err))
}

func TestDoSurfacesNon2xxAsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agentproto.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Type == agentproto.ReqGetHealth {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(agentproto.ErrorResponse{Message: "docker daemon unreachable"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	var out agentproto.LogResponse
	err := c.Do(context.Background(), agentproto.Request{Type: agentproto.ReqPullImage, Params: agentproto.PullImageParams{Image: "nginx"}}, &out)
	require.Error(t, err)
	assert.Equal(t, rifterr.KindUpstream, rifterr.KindOf(err))
	assert.Contains(t, err.Error(), "docker daemon unreachable")
}

func TestPullImageDeduplicatesWithinWindow(t *testing.T) {
	var pullCount int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agentproto.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Type == agentproto.ReqGetHealth {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		atomic.AddInt64(&pullCount, 1)
		_ = json.NewEncoder(w).Encode(agentproto.LogResponse{Stage: "pull", Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	for i := 0; i < 5; i++ {
		_, err := c.PullImage(context.Background(), "nginx:latest")
		require.NoError(t, err)
	}

	assert.EqualValues(t, 1, atomic.LoadInt64(&pullCount), "five pulls of the same image within the window must collapse to one")
}

func TestPullImageDoesNotDeduplicateAcrossDifferentNames(t *testing.T) {
	var pullCount int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agentproto.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Type == agentproto.ReqGetHealth {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		atomic.AddInt64(&pullCount, 1)
		_ = json.NewEncoder(w).Encode(agentproto.LogResponse{Stage: "pull", Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	_, err := c.PullImage(context.Background(), "nginx:latest")
	require.NoError(t, err)
	_, err = c.PullImage(context.Background(), "redis:latest")
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt64(&pullCount))
}

func TestVersionStatsAndContainersDecodeAgainstFakeAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agentproto.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Type {
		case agentproto.ReqGetHealth:
			_, _ = w.Write([]byte(`{}`))
		case agentproto.ReqGetVersion:
			_ = json.NewEncoder(w).Encode(agentproto.VersionResponse{Version: "1.2.3"})
		case agentproto.ReqGetStats:
			_ = json.NewEncoder(w).Encode(agentproto.StatsResponse{
				CpuPercent: 42.5, MemPercent: 60,
				Disks:      []agentproto.GaugeStat{{Name: "/", Percent: 70}},
				Components: []agentproto.GaugeStat{{Name: "cpu0", Percent: 80}},
			})
		case agentproto.ReqListContainers:
			_ = json.NewEncoder(w).Encode(agentproto.ContainerListResponse{
				Containers: []agentproto.ContainerStatus{{Name: "app1", State: "running"}},
			})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.5, stats.CpuPercent)
	assert.Len(t, stats.Disks, 1)

	containers, err := c.Containers(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "app1", containers[0].Name)
}
