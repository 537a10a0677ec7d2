package models

import "encoding/json"

// ExecuteRequest is the tagged union accepted by the /execute surface
// and by each ProcedureStageItem (spec.md §4.5, §4.6). Params is kept as
// a typed struct per operation rather than a raw map so handlers decode
// once at the dispatcher boundary; the JSON shape on the wire is still
// {"type": "...", "params": {...}} via MarshalJSON/UnmarshalJSON below.
type ExecuteRequest struct {
	Type   Operation   `json:"type"`
	Params interface{} `json:"params,omitempty"`
}

// paramsFactory builds a fresh zero-value Params target for a Type so
// UnmarshalJSON can decode into the right concrete struct.
var paramsFactory = map[Operation]func() interface{}{
	OpRunProcedure:      func() interface{} { return &ParamsRunProcedure{} },
	OpRunBuild:          func() interface{} { return &ParamsRunBuild{} },
	OpDeploy:            func() interface{} { return &ParamsDeploy{} },
	OpStartContainer:    func() interface{} { return &ParamsContainerOp{} },
	OpStopContainer:     func() interface{} { return &ParamsContainerOp{} },
	OpRemoveContainer:   func() interface{} { return &ParamsContainerOp{} },
	OpStopAllContainers: func() interface{} { return &ParamsStopAllContainers{} },
	OpCloneRepo:         func() interface{} { return &ParamsCloneRepo{} },
	OpPullRepo:          func() interface{} { return &ParamsPullRepo{} },
	OpBuildRepo:         func() interface{} { return &ParamsBuildRepo{} },
	OpRunSync:           func() interface{} { return &ParamsRunSync{} },
	OpDeployStack:       func() interface{} { return &ParamsDeployStack{} },
	OpDestroyStack:      func() interface{} { return &ParamsDestroyStack{} },
	OpLaunchServer:      func() interface{} { return &ParamsLaunchServer{} },
	OpPruneNetworks:     func() interface{} { return &ParamsPruneResource{} },
	OpPruneImages:       func() interface{} { return &ParamsPruneResource{} },
	OpPruneContainers:   func() interface{} { return &ParamsPruneResource{} },
	OpSleep:             func() interface{} { return &ParamsSleep{} },
	OpNone:              func() interface{} { return &ParamsNone{} },
}

type executeRequestWire struct {
	Type   Operation       `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (r ExecuteRequest) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(r.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(executeRequestWire{Type: r.Type, Params: raw})
}

func (r *ExecuteRequest) UnmarshalJSON(data []byte) error {
	var wire executeRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Type = wire.Type
	factory, ok := paramsFactory[wire.Type]
	if !ok {
		r.Params = nil
		return nil
	}
	target := factory()
	if len(wire.Params) > 0 {
		if err := json.Unmarshal(wire.Params, target); err != nil {
			return err
		}
	}
	r.Params = target
	return nil
}

type ParamsRunProcedure struct {
	Procedure string `json:"procedure"`
}

type ParamsRunBuild struct {
	Build string `json:"build"`
}

type ParamsDeploy struct {
	Deployment string `json:"deployment"`
	StopSignal string `json:"stop_signal,omitempty"`
}

type ParamsContainerOp struct {
	Deployment string `json:"deployment"`
}

type ParamsStopAllContainers struct {
	Server string `json:"server"`
}

type ParamsCloneRepo struct {
	Repo string `json:"repo"`
}

type ParamsPullRepo struct {
	Repo string `json:"repo"`
}

type ParamsBuildRepo struct {
	Repo string `json:"repo"`
}

type ParamsRunSync struct {
	ResourceSync  string `json:"resource_sync"`
	DryRun        bool   `json:"dry_run,omitempty"`
}

type ParamsDeployStack struct {
	Stack string `json:"stack"`
}

type ParamsDestroyStack struct {
	Stack string `json:"stack"`
}

type ParamsLaunchServer struct {
	ServerTemplate string `json:"server_template"`
	Name           string `json:"name"`
}

type ParamsPruneResource struct {
	Server string `json:"server"`
}

type ParamsSleep struct {
	DurationMs int64 `json:"duration_ms"`
}

type ParamsNone struct{}
