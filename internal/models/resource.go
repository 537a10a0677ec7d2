package models

import "time"

// Resource is the generic envelope every managed resource is stored
// under: a unique id and name, free-text description, a tag-id set, an
// updated-at timestamp, and a polymorphic Config/Info pair. Config and
// Info are stored as raw JSON and decoded into the type-specific struct
// by the store layer, since Go has no sum-type config field like the
// source's per-type generics.
type Resource[Config any, Info any] struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	UpdatedAt   time.Time `json:"updated_at"`
	Config      Config    `json:"config"`
	Info        Info      `json:"info"`
}

// ServerConfig is the declared configuration of a Server resource.
type ServerConfig struct {
	Address        string `json:"address" validate:"required"`
	Region         string `json:"region,omitempty"`
	Enabled        bool   `json:"enabled"`
	AutoPrune      bool   `json:"auto_prune"`
	PasskeyRef     string `json:"passkey_ref,omitempty"`
	CpuWarning     float64 `json:"cpu_warning,omitempty"`
	CpuCritical    float64 `json:"cpu_critical,omitempty"`
	MemWarning     float64 `json:"mem_warning,omitempty"`
	MemCritical    float64 `json:"mem_critical,omitempty"`
	DiskWarning    float64 `json:"disk_warning,omitempty"`
	DiskCritical   float64 `json:"disk_critical,omitempty"`
	TempWarning    float64 `json:"temp_warning,omitempty"`
	TempCritical   float64 `json:"temp_critical,omitempty"`
}

// ServerInfo is the runtime-maintained cache of a Server's last observed
// state, written only by the monitor loop.
type ServerInfo struct {
	Status        ServerStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	LastCheckedAt time.Time    `json:"last_checked_at,omitempty"`
}

type ServerStatus string

const (
	ServerStatusOk         ServerStatus = "Ok"
	ServerStatusNotOk      ServerStatus = "NotOk"
	ServerStatusDisabled   ServerStatus = "Disabled"
)

type Server = Resource[ServerConfig, ServerInfo]

// DeploymentImageSource is an enum-variant config: exactly one of the
// embedded pointers is non-nil. Replaced atomically on config update
// (SPEC_FULL.md §4.1).
type DeploymentImageSource struct {
	Image  *ImageSourceImage  `json:"image,omitempty"`
	Build  *ImageSourceBuild  `json:"build,omitempty"`
	None   *struct{}          `json:"none,omitempty"`
}

type ImageSourceImage struct {
	Image string `json:"image" validate:"required"`
}

type ImageSourceBuild struct {
	BuildId string `json:"build_id" validate:"required"`
	Version string `json:"version,omitempty"`
}

type DeploymentConfig struct {
	ServerId    string                 `json:"server_id" validate:"required"`
	Image       DeploymentImageSource  `json:"image"`
	Environment map[string]string      `json:"environment,omitempty"`
	Ports       []string               `json:"ports,omitempty"`
	Volumes     []string               `json:"volumes,omitempty"`
	Network     string                 `json:"network,omitempty"`
	RestartPolicy string               `json:"restart_policy,omitempty"`
	Command     string                 `json:"command,omitempty"`
	WebhookEnabled bool                `json:"webhook_enabled"`
	WebhookSecret  string              `json:"webhook_secret,omitempty"`
	Branch         string              `json:"branch,omitempty"`
	DeployOnSync   bool                `json:"deploy_on_sync"`
	After          []string            `json:"after,omitempty"` // names of Deployments/Stacks that must deploy first
}

type ContainerState string

const (
	ContainerStateRunning    ContainerState = "running"
	ContainerStateExited     ContainerState = "exited"
	ContainerStateRestarting ContainerState = "restarting"
	ContainerStatePaused     ContainerState = "paused"
	ContainerStateDead       ContainerState = "dead"
	ContainerStateUnknown    ContainerState = "unknown"
	ContainerStateNotDeployed ContainerState = "not_deployed"
)

type DeploymentInfo struct {
	State        ContainerState `json:"state"`
	LastDeployed time.Time      `json:"last_deployed,omitempty"`
}

type Deployment = Resource[DeploymentConfig, DeploymentInfo]

// RepoConfig declares a git repository to clone/pull on a Server.
type RepoConfig struct {
	ServerId       string `json:"server_id" validate:"required"`
	Repo           string `json:"repo" validate:"required"` // e.g. "owner/name"
	Branch         string `json:"branch"`
	Path           string `json:"path,omitempty"`
	WebhookEnabled bool   `json:"webhook_enabled"`
	WebhookSecret  string `json:"webhook_secret,omitempty"`
}

type RepoInfo struct {
	LastClonedHash string    `json:"last_cloned_hash,omitempty"`
	LastPulledAt   time.Time `json:"last_pulled_at,omitempty"`
}

type Repo = Resource[RepoConfig, RepoInfo]

// BuilderConfig is an enum-variant config: either a Server builder or a
// cloud launcher. A Build references one through BuilderId, but RunBuild
// does not consult it: every build runs on its Repo's Server. The cloud
// variant is retained as a documented no-op builder kind since
// cloud launch is outside this core's scope (no cloud SDK survives in
// the dependency set for it, see DESIGN.md).
type BuilderConfig struct {
	Server *BuilderServer `json:"server,omitempty"`
	Cloud  *BuilderCloud  `json:"cloud,omitempty"`
}

type BuilderServer struct {
	ServerId string `json:"server_id" validate:"required"`
}

type BuilderCloud struct {
	Provider string `json:"provider"`
	Region   string `json:"region,omitempty"`
}

type BuilderInfo struct{}

type Builder = Resource[BuilderConfig, BuilderInfo]

// BuildConfig declares a build operation against a Repo on a Builder.
type BuildConfig struct {
	BuilderId  string            `json:"builder_id,omitempty"`
	RepoId     string            `json:"repo_id" validate:"required"`
	Dockerfile string            `json:"dockerfile,omitempty"`
	BuildArgs  map[string]string `json:"build_args,omitempty"`
	ImageName  string            `json:"image_name" validate:"required"`
	WebhookEnabled bool          `json:"webhook_enabled"`
	WebhookSecret  string        `json:"webhook_secret,omitempty"`
	Branch         string        `json:"branch,omitempty"`
}

type BuildInfo struct {
	LastBuiltVersion string    `json:"last_built_version,omitempty"`
	LastBuiltAt      time.Time `json:"last_built_at,omitempty"`
}

type Build = Resource[BuildConfig, BuildInfo]

// StackSource is an enum-variant config, replaced atomically.
type StackSource struct {
	Inline *string        `json:"inline,omitempty"`
	Repo   *StackSourceRepo `json:"repo,omitempty"`
}

type StackSourceRepo struct {
	RepoId string `json:"repo_id" validate:"required"`
	Path   string `json:"path,omitempty"` // path to compose file within the repo
}

type StackConfig struct {
	ServerId       string     `json:"server_id" validate:"required"`
	Source         StackSource `json:"source"`
	Environment    map[string]string `json:"environment,omitempty"`
	WebhookEnabled bool       `json:"webhook_enabled"`
	WebhookSecret  string     `json:"webhook_secret,omitempty"`
	Branch         string     `json:"branch,omitempty"`
	DeployOnSync   bool       `json:"deploy_on_sync"`
	After          []string   `json:"after,omitempty"` // names of Deployments/Stacks that must deploy first
}

type StackInfo struct {
	Services     []string  `json:"services,omitempty"`
	LastDeployed time.Time `json:"last_deployed,omitempty"`
}

type Stack = Resource[StackConfig, StackInfo]

// ProcedureStageKind is Sequence or Parallel (SPEC_FULL.md §4.6).
type ProcedureStageKind string

const (
	StageSequence ProcedureStageKind = "Sequence"
	StageParallel ProcedureStageKind = "Parallel"
)

// ProcedureStageItem pairs an execution request with an enabled flag;
// disabled items are skipped entirely (no child Update is created for
// them, mirroring end-to-end scenario 6 in spec.md §8).
type ProcedureStageItem struct {
	Name      string          `json:"name"`
	Enabled   bool            `json:"enabled"`
	Execution ExecuteRequest  `json:"execution"`
}

type ProcedureStage struct {
	Name  string               `json:"name"`
	Kind  ProcedureStageKind   `json:"kind"`
	Items []ProcedureStageItem `json:"items"`
}

type ProcedureConfig struct {
	Stages []ProcedureStage `json:"stages"`
}

type ProcedureInfo struct{}

type Procedure = Resource[ProcedureConfig, ProcedureInfo]

// ResourceSyncFileSource is an enum-variant config: inline TOML, a
// path on host, or a git-repo reference plus a resource subpath.
type ResourceSyncFileSource struct {
	Inline *string                  `json:"inline,omitempty"`
	Path   *string                  `json:"path,omitempty"`
	Git    *ResourceSyncGitSource   `json:"git,omitempty"`
}

type ResourceSyncGitSource struct {
	RepoId  string `json:"repo_id" validate:"required"`
	Subpath string `json:"subpath,omitempty"`
}

type ResourceSyncConfig struct {
	Source         ResourceSyncFileSource `json:"source"`
	MatchTags      []string               `json:"match_tags,omitempty"`
	Delete         bool                   `json:"delete"`
	DeployOnSync   bool                   `json:"deploy_on_sync"`
	WebhookEnabled bool                   `json:"webhook_enabled"`
	WebhookSecret  string                 `json:"webhook_secret,omitempty"`
	Branch         string                 `json:"branch,omitempty"`
}

type ResourceSyncInfo struct {
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`
	LastSyncError string    `json:"last_sync_error,omitempty"`
	PendingReview bool      `json:"pending_review"`
}

type ResourceSync = Resource[ResourceSyncConfig, ResourceSyncInfo]

// AlerterConfig is an enum-variant config for the notification sink.
type AlerterConfig struct {
	Slack   *AlerterSlack   `json:"slack,omitempty"`
	Webhook *AlerterWebhook `json:"webhook,omitempty"`
	Discord *AlerterWebhook `json:"discord,omitempty"` // same shape, distinct transport tag
	Enabled bool            `json:"enabled"`
}

type AlerterSlack struct {
	Url     string `json:"url" validate:"required"`
	Channel string `json:"channel,omitempty"`
}

type AlerterWebhook struct {
	Url string `json:"url" validate:"required"`
}

type AlerterInfo struct{}

type Alerter = Resource[AlerterConfig, AlerterInfo]

// ServerTemplateConfig describes how to launch a new Server (cloud
// launcher parameters). LaunchServer is stubbed at the agent boundary
// per DESIGN.md; the config/validate/store path is fully implemented.
type ServerTemplateConfig struct {
	Provider     string            `json:"provider" validate:"required"`
	Region       string            `json:"region,omitempty"`
	InstanceType string            `json:"instance_type,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

type ServerTemplateInfo struct{}

type ServerTemplate = Resource[ServerTemplateConfig, ServerTemplateInfo]

// ActionConfig is a named scripted operation attached to a resource,
// distinct from an execution of it (glossary).
type ActionConfig struct {
	Target ResourceTarget `json:"target"`
	Script string         `json:"script"`
}

type ActionInfo struct{}

type Action = Resource[ActionConfig, ActionInfo]
