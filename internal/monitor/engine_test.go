package monitor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riftctl/rift/internal/agentclient"
	"github.com/riftctl/rift/internal/agentproto"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/monitor"
	"github.com/riftctl/rift/internal/notify"
	"github.com/riftctl/rift/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/rift-monitor-test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Send(ctx context.Context, ev notify.Event) map[string]error {
	f.events = append(f.events, ev)
	return nil
}

// fakeAgent answers the agent protocol with caller-controlled handlers;
// nil handlers make the request fail (simulating an unreachable agent).
type fakeAgent struct {
	version    *string
	stats      *agentproto.StatsResponse
	containers *[]agentproto.ContainerStatus
}

func (f *fakeAgent) server(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req agentproto.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Type {
		case agentproto.ReqGetHealth:
			_, _ = w.Write([]byte(`{}`))
		case agentproto.ReqGetVersion:
			if f.version == nil {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(agentproto.VersionResponse{Version: *f.version})
		case agentproto.ReqGetStats:
			if f.stats == nil {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(*f.stats)
		case agentproto.ReqListContainers:
			if f.containers == nil {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(agentproto.ContainerListResponse{Containers: *f.containers})
		case agentproto.ReqPruneImages:
			_ = json.NewEncoder(w).Encode(agentproto.LogResponse{Success: true})
		}
	}))
}

func newEngine(t *testing.T, s *store.Store, notifier monitor.Notifier, clientFor func(models.Server) (*agentclient.Client, error)) *monitor.Engine {
	t.Helper()
	e := monitor.New(s.Records(), notifier)
	e.Servers = store.NewCollection[models.ServerConfig, models.ServerInfo](s, "servers")
	e.Deployments = store.NewCollection[models.DeploymentConfig, models.DeploymentInfo](s, "deployments")
	e.AgentClientFor = clientFor
	fixed := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	e.Clock = func() time.Time { return fixed }
	return e
}

func strPtr(s string) *string { return &s }

func TestTickMarksServerOkAndRecordsStats(t *testing.T) {
	s := openTestStore(t)
	agent := &fakeAgent{
		version: strPtr("1.0.0"),
		stats:   &agentproto.StatsResponse{CpuPercent: 10, MemPercent: 20},
		containers: &[]agentproto.ContainerStatus{},
	}
	srv := agent.server(t)
	defer srv.Close()

	notifier := &fakeNotifier{}
	e := newEngine(t, s, notifier, func(models.Server) (*agentclient.Client, error) {
		return agentclient.New(srv.URL, "secret"), nil
	})

	server, err := e.Servers.Create("web1", "", nil, models.ServerConfig{Address: srv.URL, Enabled: true})
	require.NoError(t, err)

	require.NoError(t, e.Tick(context.Background()))

	got, err := e.Servers.Get(server.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ServerStatusOk, got.Info.Status)

	stats, err := s.Records().ListStats(server.Id)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 10.0, stats[0].CpuPercent)
}

func TestTickMarksUnreachableAndDeploymentsUnknownOnVersionFailure(t *testing.T) {
	s := openTestStore(t)
	agent := &fakeAgent{} // version nil -> every real query fails
	srv := agent.server(t)
	defer srv.Close()

	notifier := &fakeNotifier{}
	e := newEngine(t, s, notifier, func(models.Server) (*agentclient.Client, error) {
		return agentclient.New(srv.URL, "secret"), nil
	})

	server, err := e.Servers.Create("web1", "", nil, models.ServerConfig{Address: srv.URL, Enabled: true})
	require.NoError(t, err)
	dep, err := e.Deployments.Create("app", "", nil, models.DeploymentConfig{ServerId: server.Id})
	require.NoError(t, err)

	require.NoError(t, e.Tick(context.Background()))

	gotServer, err := e.Servers.Get(server.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ServerStatusNotOk, gotServer.Info.Status)

	gotDep, err := e.Deployments.Get(dep.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ContainerStateUnknown, gotDep.Info.State)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.AlertServerUnreachable, notifier.events[0].Alert.Variant)
	assert.False(t, notifier.events[0].Resolved)

	// A second tick while still unreachable must not open a duplicate alert.
	require.NoError(t, e.Tick(context.Background()))
	require.Len(t, notifier.events, 1)
}

func TestTickSkipsDisabledServerEntirely(t *testing.T) {
	s := openTestStore(t)
	notifier := &fakeNotifier{}
	called := false
	e := newEngine(t, s, notifier, func(models.Server) (*agentclient.Client, error) {
		called = true
		return nil, nil
	})

	server, err := e.Servers.Create("web1", "", nil, models.ServerConfig{Address: "unused", Enabled: false})
	require.NoError(t, err)
	dep, err := e.Deployments.Create("app", "", nil, models.DeploymentConfig{ServerId: server.Id})
	require.NoError(t, err)

	require.NoError(t, e.Tick(context.Background()))
	assert.False(t, called, "a disabled server must never reach the agent client factory")

	gotServer, err := e.Servers.Get(server.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ServerStatusDisabled, gotServer.Info.Status)

	gotDep, err := e.Deployments.Get(dep.Id)
	require.NoError(t, err)
	assert.Equal(t, models.ContainerStateUnknown, gotDep.Info.State)
}

func TestTickEmitsContainerStateChangeAlertOnlyOnTransition(t *testing.T) {
	s := openTestStore(t)
	agent := &fakeAgent{
		version: strPtr("1.0.0"),
		stats:   &agentproto.StatsResponse{},
	}
	srv := agent.server(t)
	defer srv.Close()

	notifier := &fakeNotifier{}
	e := newEngine(t, s, notifier, func(models.Server) (*agentclient.Client, error) {
		return agentclient.New(srv.URL, "secret"), nil
	})

	server, err := e.Servers.Create("web1", "", nil, models.ServerConfig{Address: srv.URL, Enabled: true})
	require.NoError(t, err)
	_, err = e.Deployments.Create("app", "", nil, models.DeploymentConfig{ServerId: server.Id})
	require.NoError(t, err)

	running := []agentproto.ContainerStatus{{Name: "app", State: "running"}}
	agent.containers = &running
	require.NoError(t, e.Tick(context.Background()))
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.AlertContainerStateChange, notifier.events[0].Alert.Variant)

	// Same state again: no new alert.
	require.NoError(t, e.Tick(context.Background()))
	require.Len(t, notifier.events, 1)

	// State changes: one more alert.
	exited := []agentproto.ContainerStatus{{Name: "app", State: "exited"}}
	agent.containers = &exited
	require.NoError(t, e.Tick(context.Background()))
	require.Len(t, notifier.events, 2)
}

func TestTickOpensAndResolvesCpuAlertOnThresholdCross(t *testing.T) {
	s := openTestStore(t)
	agent := &fakeAgent{version: strPtr("1.0.0"), stats: &agentproto.StatsResponse{CpuPercent: 10}}
	srv := agent.server(t)
	defer srv.Close()

	notifier := &fakeNotifier{}
	e := newEngine(t, s, notifier, func(models.Server) (*agentclient.Client, error) {
		return agentclient.New(srv.URL, "secret"), nil
	})

	server, err := e.Servers.Create("web1", "", nil, models.ServerConfig{
		Address: srv.URL, Enabled: true, CpuWarning: 70, CpuCritical: 90,
	})
	require.NoError(t, err)

	// Below warning: no alert.
	require.NoError(t, e.Tick(context.Background()))
	assert.Empty(t, notifier.events)

	// Cross into critical.
	agent.stats = &agentproto.StatsResponse{CpuPercent: 95}
	require.NoError(t, e.Tick(context.Background()))
	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.SeverityCritical, notifier.events[0].Alert.Severity)
	assert.False(t, notifier.events[0].Resolved)

	open, err := s.Records().FindUnresolvedAlert(models.NewTarget(models.ResourceTypeServer, server.Id), models.AlertServerCpu)
	require.NoError(t, err)
	require.NotNil(t, open)

	// Fall back to Ok: alert resolves.
	agent.stats = &agentproto.StatsResponse{CpuPercent: 5}
	require.NoError(t, e.Tick(context.Background()))
	require.Len(t, notifier.events, 2)
	assert.True(t, notifier.events[1].Resolved)

	open, err = s.Records().FindUnresolvedAlert(models.NewTarget(models.ResourceTypeServer, server.Id), models.AlertServerCpu)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestPrunePrunesOldStatsAndResolvedAlertsButKeepsUnresolved(t *testing.T) {
	s := openTestStore(t)
	notifier := &fakeNotifier{}
	e := newEngine(t, s, notifier, func(models.Server) (*agentclient.Client, error) { return nil, nil })
	e.KeepStatsForDays = 1
	e.KeepAlertsForDays = 1

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Records().PutStat(models.Stat{ServerId: "srv1", Ts: old, CpuPercent: 1})
	require.NoError(t, err)

	resolvedAlert := models.Alert{Ts: old, Resolved: true, Severity: models.SeverityWarning,
		Target: models.NewTarget(models.ResourceTypeServer, "srv1"), Variant: models.AlertServerCpu}
	_, err = s.Records().PutAlert(resolvedAlert)
	require.NoError(t, err)

	unresolvedAlert := models.Alert{Ts: old, Resolved: false, Severity: models.SeverityCritical,
		Target: models.NewTarget(models.ResourceTypeServer, "srv1"), Variant: models.AlertServerMem}
	_, err = s.Records().PutAlert(unresolvedAlert)
	require.NoError(t, err)

	require.NoError(t, e.Prune(context.Background()))

	stats, err := s.Records().ListStats("srv1")
	require.NoError(t, err)
	assert.Empty(t, stats)

	alerts, err := s.Records().ListAlerts(nil)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.False(t, alerts[0].Resolved)
}
