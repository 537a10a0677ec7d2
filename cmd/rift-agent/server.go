package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/riftctl/rift/internal/agentproto"
	"github.com/rs/zerolog"
)

// agent dispatches a decoded agentproto.Request to the matching
// docker/gopsutil/git-backed implementation.
type agent struct {
	docker  *dockerRuntime
	repoDir string
	log     zerolog.Logger
}

func newServer(addr, passkey string, a *agent, log *zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/", authMiddleware(passkey, a))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // image pulls and builds run well past a few seconds
		IdleTimeout:  60 * time.Second,
	}
}

func authMiddleware(passkey string, a *agent) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token != passkey {
			writeAgentError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		a.ServeHTTP(w, r)
	})
}

func (a *agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAgentError(w, http.StatusMethodNotAllowed, "only POST is supported")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeAgentError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	var req agentproto.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeAgentError(w, http.StatusBadRequest, "decoding request: "+err.Error())
		return
	}

	resp, err := a.dispatch(r.Context(), req)
	if err != nil {
		a.log.Error().Err(err).Str("type", string(req.Type)).Msg("agent request failed")
		writeAgentError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeAgentJSON(w, resp)
}

func (a *agent) dispatch(ctx context.Context, req agentproto.Request) (interface{}, error) {
	switch p := req.Params.(type) {
	case *agentproto.GetHealthParams:
		return agentproto.HealthResponse{}, nil
	case *agentproto.GetVersionParams:
		return agentproto.VersionResponse{Version: Version}, nil
	case *agentproto.GetStatsParams:
		return collectStats(ctx)
	case *agentproto.ListContainersParams:
		containers, err := a.docker.listContainers(ctx)
		return agentproto.ContainerListResponse{Containers: containers}, err
	case *agentproto.DeployParams:
		return a.docker.deploy(ctx, *p)
	case *agentproto.ContainerParams:
		return a.containerOp(ctx, req.Type, *p)
	case *agentproto.StopAllContainersParams:
		return a.docker.stopAllContainers(ctx)
	case *agentproto.PullImageParams:
		return a.docker.pullImage(ctx, p.Image)
	case *agentproto.RepoParams:
		return a.repoOp(ctx, req.Type, *p)
	case *agentproto.BuildRepoParams:
		return a.buildRepo(ctx, *p)
	case *agentproto.DeployStackParams:
		return a.docker.deployStack(ctx, *p)
	case *agentproto.DestroyStackParams:
		return a.docker.destroyStack(ctx, *p)
	case *agentproto.PruneParams:
		return a.pruneOp(ctx, req.Type)
	default:
		return nil, errUnknownParams(req.Type)
	}
}

func (a *agent) containerOp(ctx context.Context, reqType agentproto.RequestType, p agentproto.ContainerParams) (agentproto.LogResponse, error) {
	switch reqType {
	case agentproto.ReqStartContainer:
		return a.docker.startContainer(ctx, p.ContainerName)
	case agentproto.ReqStopContainer:
		return a.docker.stopContainer(ctx, p.ContainerName)
	case agentproto.ReqRemoveContainer:
		return a.docker.removeContainer(ctx, p.ContainerName)
	default:
		return agentproto.LogResponse{}, errUnknownParams(reqType)
	}
}

func (a *agent) repoOp(ctx context.Context, reqType agentproto.RequestType, p agentproto.RepoParams) (agentproto.LogResponse, error) {
	switch reqType {
	case agentproto.ReqCloneRepo:
		return cloneRepo(ctx, a.repoDir, p)
	case agentproto.ReqPullRepo:
		return pullRepo(ctx, a.repoDir, p)
	default:
		return agentproto.LogResponse{}, errUnknownParams(reqType)
	}
}

func (a *agent) pruneOp(ctx context.Context, reqType agentproto.RequestType) (agentproto.LogResponse, error) {
	switch reqType {
	case agentproto.ReqPruneNetworks:
		return a.docker.pruneNetworks(ctx)
	case agentproto.ReqPruneImages:
		return a.docker.pruneImages(ctx)
	case agentproto.ReqPruneContainers:
		return a.docker.pruneContainers(ctx)
	default:
		return agentproto.LogResponse{}, errUnknownParams(reqType)
	}
}

func writeAgentJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAgentError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(agentproto.ErrorResponse{Message: message})
}
