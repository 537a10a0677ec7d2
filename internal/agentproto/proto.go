// Package agentproto defines the wire protocol between the coordinator
// and a host agent: a synchronous HTTP POST of a tagged {"type",
// "params"} envelope, adapted from the teacher's agent-exec WebSocket
// Message{Type, ID, Timestamp, Payload} envelope (spec.md §6, §4.10).
package agentproto

import (
	"encoding/json"
	"fmt"
)

// RequestType names one agent-side operation.
type RequestType string

const (
	ReqGetHealth         RequestType = "GetHealth"
	ReqGetVersion        RequestType = "GetVersion"
	ReqGetStats          RequestType = "GetStats"
	ReqListContainers    RequestType = "ListContainers"
	ReqDeploy            RequestType = "Deploy"
	ReqStartContainer    RequestType = "StartContainer"
	ReqStopContainer     RequestType = "StopContainer"
	ReqStopAllContainers RequestType = "StopAllContainers"
	ReqRemoveContainer   RequestType = "RemoveContainer"
	ReqPullImage         RequestType = "PullImage"
	ReqCloneRepo         RequestType = "CloneRepo"
	ReqPullRepo          RequestType = "PullRepo"
	ReqBuildRepo         RequestType = "BuildRepo"
	ReqDeployStack       RequestType = "DeployStack"
	ReqDestroyStack      RequestType = "DestroyStack"
	ReqPruneNetworks     RequestType = "PruneNetworks"
	ReqPruneImages       RequestType = "PruneImages"
	ReqPruneContainers   RequestType = "PruneContainers"
)

// Request is the envelope sent to the agent's root endpoint.
type Request struct {
	Type   RequestType `json:"type"`
	Params interface{} `json:"params"`
}

type requestWire struct {
	Type   RequestType     `json:"type"`
	Params json.RawMessage `json:"params"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(requestWire{Type: r.Type, Params: params})
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var wire requestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	factory, ok := paramsFactory[wire.Type]
	if !ok {
		return fmt.Errorf("agentproto: unknown request type %q", wire.Type)
	}
	params := factory()
	if len(wire.Params) > 0 {
		if err := json.Unmarshal(wire.Params, params); err != nil {
			return err
		}
	}
	r.Type = wire.Type
	r.Params = params
	return nil
}

var paramsFactory = map[RequestType]func() interface{}{
	ReqGetHealth:         func() interface{} { return &GetHealthParams{} },
	ReqGetVersion:        func() interface{} { return &GetVersionParams{} },
	ReqGetStats:          func() interface{} { return &GetStatsParams{} },
	ReqListContainers:    func() interface{} { return &ListContainersParams{} },
	ReqDeploy:            func() interface{} { return &DeployParams{} },
	ReqStartContainer:    func() interface{} { return &ContainerParams{} },
	ReqStopContainer:     func() interface{} { return &ContainerParams{} },
	ReqStopAllContainers: func() interface{} { return &StopAllContainersParams{} },
	ReqRemoveContainer:   func() interface{} { return &ContainerParams{} },
	ReqPullImage:         func() interface{} { return &PullImageParams{} },
	ReqCloneRepo:         func() interface{} { return &RepoParams{} },
	ReqPullRepo:          func() interface{} { return &RepoParams{} },
	ReqBuildRepo:         func() interface{} { return &BuildRepoParams{} },
	ReqDeployStack:       func() interface{} { return &DeployStackParams{} },
	ReqDestroyStack:      func() interface{} { return &DestroyStackParams{} },
	ReqPruneNetworks:     func() interface{} { return &PruneParams{} },
	ReqPruneImages:       func() interface{} { return &PruneParams{} },
	ReqPruneContainers:   func() interface{} { return &PruneParams{} },
}

type GetHealthParams struct{}

type GetVersionParams struct{}

type GetStatsParams struct{}

type ListContainersParams struct{}

type DeployParams struct {
	ContainerName  string            `json:"container_name"`
	Image          string            `json:"image"`
	Environment    map[string]string `json:"environment,omitempty"`
	Ports          []string          `json:"ports,omitempty"`
	Volumes        []string          `json:"volumes,omitempty"`
	Network        string            `json:"network,omitempty"`
	RestartPolicy  string            `json:"restart_policy,omitempty"`
	Command        string            `json:"command,omitempty"`
	StopSignal     string            `json:"stop_signal,omitempty"`
}

type ContainerParams struct {
	ContainerName string `json:"container_name"`
}

type StopAllContainersParams struct{}

type PullImageParams struct {
	Image string `json:"image"`
}

type RepoParams struct {
	Url    string `json:"url"`
	Branch string `json:"branch,omitempty"`
	Path   string `json:"path"`
}

type BuildRepoParams struct {
	Path       string            `json:"path"`
	Dockerfile string            `json:"dockerfile,omitempty"`
	BuildArgs  map[string]string `json:"build_args,omitempty"`
	ImageName  string            `json:"image_name"`
}

type DeployStackParams struct {
	Path        string            `json:"path"`
	Environment map[string]string `json:"environment,omitempty"`
}

type DestroyStackParams struct {
	Path string `json:"path"`
}

type PruneParams struct{}

// Response types, one per request type.

type HealthResponse struct{}

type VersionResponse struct {
	Version string `json:"version"`
}

// GaugeStat is one named percentage-of-threshold reading — a disk
// mount or a hardware component temperature (spec.md §4.9 step 4).
type GaugeStat struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// StatsResponse is the agent's all-system-stats snapshot: aggregate
// cpu/mem percentages plus one GaugeStat per disk and per temperature
// component, since a host can report zero, one, or several of each.
type StatsResponse struct {
	CpuPercent float64     `json:"cpu_percent"`
	MemPercent float64     `json:"mem_percent"`
	Disks      []GaugeStat `json:"disks,omitempty"`
	Components []GaugeStat `json:"components,omitempty"`
}

// ContainerStatus is one running/stopped container as the agent sees
// it, keyed by the name the coordinator assigned at deploy time.
type ContainerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type ContainerListResponse struct {
	Containers []ContainerStatus `json:"containers"`
}

type LogResponse struct {
	Stage   string `json:"stage"`
	Command string `json:"command,omitempty"`
	Stdout  string `json:"stdout,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
	Success bool   `json:"success"`
}

// ErrorResponse is the body of a non-2xx agent response.
type ErrorResponse struct {
	Message string `json:"message"`
}
