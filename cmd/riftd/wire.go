package main

import (
	"net/http"
	"path/filepath"

	"github.com/riftctl/rift/internal/actionstate"
	"github.com/riftctl/rift/internal/agentclient"
	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/config"
	"github.com/riftctl/rift/internal/dispatcher"
	"github.com/riftctl/rift/internal/httpapi"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/monitor"
	"github.com/riftctl/rift/internal/notify"
	"github.com/riftctl/rift/internal/procedure"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
	"github.com/riftctl/rift/internal/sync"
	"github.com/riftctl/rift/internal/updatelog"
	"github.com/riftctl/rift/internal/webhook"
)

// application holds every long-lived component runServer needs after
// wiring; it's the thing main.go's lifecycle code (startup sweep,
// scheduler start/stop, graceful shutdown) closes over.
type application struct {
	store     *store.Store
	updateHub *updatelog.Hub
	pipeline  *updatelog.Pipeline
	scheduler *monitor.Scheduler
	actions   *actionstate.Registry
	router    http.Handler
}

func (a *application) httpServer(addr string) *http.Server {
	return &http.Server{Addr: addr, Handler: a.router}
}

// wire builds the full dependency graph described in SPEC_FULL.md: one
// bbolt store, the eleven resource collections shared by every engine,
// the action-state guard, the update pipeline/hub, the agent-client
// factory, the three consumer-declared Executor-backed engines
// (procedure/sync/webhook), the monitor loop, and the HTTP surface —
// grounded on cmd/pulse/main.go's single linear bootstrap function.
func wire(cfg config.Config) (*application, error) {
	st, err := store.Open(filepath.Join(cfg.DataDir, "rift.db"))
	if err != nil {
		return nil, err
	}
	records := st.Records()

	servers := store.NewCollection[models.ServerConfig, models.ServerInfo](st, "servers")
	deployments := store.NewCollection[models.DeploymentConfig, models.DeploymentInfo](st, "deployments")
	builds := store.NewCollection[models.BuildConfig, models.BuildInfo](st, "builds")
	repos := store.NewCollection[models.RepoConfig, models.RepoInfo](st, "repos")
	stacks := store.NewCollection[models.StackConfig, models.StackInfo](st, "stacks")
	procedures := store.NewCollection[models.ProcedureConfig, models.ProcedureInfo](st, "procedures")
	resourceSyncs := store.NewCollection[models.ResourceSyncConfig, models.ResourceSyncInfo](st, "resource_syncs")
	builders := store.NewCollection[models.BuilderConfig, models.BuilderInfo](st, "builders")
	alerters := store.NewCollection[models.AlerterConfig, models.AlerterInfo](st, "alerters")
	serverTemplates := store.NewCollection[models.ServerTemplateConfig, models.ServerTemplateInfo](st, "server_templates")
	actions := store.NewCollection[models.ActionConfig, models.ActionInfo](st, "actions")

	actionRegistry := actionstate.NewRegistry()
	hub := updatelog.NewHub()
	pipeline := updatelog.NewPipeline(records, hub, st.Now)

	jwtIssuer, err := auth.NewJwtIssuer(cfg.JwtValidFor)
	if err != nil {
		return nil, err
	}
	exchange := auth.NewExchangeBroker()
	baseLevels := auth.BaseLevels(cfg.BaseLevels())

	agentClientFor := func(server models.Server) (*agentclient.Client, error) {
		if server.Config.Address == "" {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "server %q has no address", server.Name)
		}
		passkey := ""
		if server.Config.PasskeyRef != "" {
			v, err := records.GetVariable(server.Config.PasskeyRef)
			if err != nil {
				return nil, rifterr.Wrap(rifterr.KindInvalidConfig, err, "resolving passkey for server %q", server.Name)
			}
			passkey = v.Value
		}
		return agentclient.New(server.Config.Address, passkey), nil
	}

	d := &dispatcher.Dispatcher{
		Store:           st,
		Records:         records,
		Pipeline:        pipeline,
		Actions:         actionRegistry,
		BaseLevels:      baseLevels,
		AgentClientFor:  agentClientFor,
		Servers:         servers,
		Deployments:     deployments,
		Builds:          builds,
		Repos:           repos,
		Builders:        builders,
		Stacks:          stacks,
		ServerTemplates: serverTemplates,
		Procedures:      procedures,
		ResourceSyncs:   resourceSyncs,
	}

	procEngine := procedure.New(procedures, d)
	d.ProcedureEngine = procEngine

	syncEngine := sync.New(records, d, filepath.Join(cfg.DataDir, "sync-repos"))
	syncEngine.ServerTemplates = serverTemplates
	syncEngine.Servers = servers
	syncEngine.Alerters = alerters
	syncEngine.Builders = builders
	syncEngine.Repos = repos
	syncEngine.Builds = builds
	syncEngine.Deployments = deployments
	syncEngine.Stacks = stacks
	syncEngine.Procedures = procedures
	syncEngine.Actions = actions
	syncEngine.ResourceSyncs = resourceSyncs
	d.SyncEngine = syncEngine

	bridge := webhook.New(d)
	bridge.Repos = repos
	bridge.Builds = builds
	bridge.Deployments = deployments
	bridge.Stacks = stacks
	bridge.ResourceSyncs = resourceSyncs

	notifier := notify.New(alerters)
	monitorEngine := monitor.New(records, notifier)
	monitorEngine.AgentClientFor = agentClientFor
	monitorEngine.Servers = servers
	monitorEngine.Deployments = deployments
	monitorEngine.KeepStatsForDays = cfg.KeepStatsForDays
	monitorEngine.KeepAlertsForDays = cfg.KeepAlertsForDays

	scheduler, err := monitor.NewScheduler(monitorEngine, cfg.MonitorInterval, cfg.PruneSchedule)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := httpapi.NewRegistry(servers, deployments, builds, repos, stacks, procedures, resourceSyncs, builders, alerters, serverTemplates, actions)
	authHandler := httpapi.NewAuth(records, jwtIssuer, exchange)
	readHandler := httpapi.NewRead(registry, records, actionRegistry, baseLevels)
	writeHandler := httpapi.NewWrite(registry, records, baseLevels, builds)
	executeHandler := httpapi.NewExecute(d)
	listenerHandler := httpapi.NewListener(bridge)
	router := httpapi.NewRouter(authHandler, readHandler, writeHandler, executeHandler, listenerHandler, hub)

	return &application{
		store:     st,
		updateHub: hub,
		pipeline:  pipeline,
		scheduler: scheduler,
		actions:   actionRegistry,
		router:    router,
	}, nil
}

func openStore(cfg config.Config) (*store.Store, *store.Records, error) {
	st, err := store.Open(filepath.Join(cfg.DataDir, "rift.db"))
	if err != nil {
		return nil, nil, err
	}
	return st, st.Records(), nil
}
