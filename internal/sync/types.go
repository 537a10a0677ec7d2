// Package sync implements the declarative sync engine from spec.md
// §4.7: materialize a resource document set from an inline TOML blob, a
// path on host, or a git repository, diff it against the store, and
// apply the result in dependency order, optionally followed by a
// topologically-ordered deploy pass.
package sync

import "github.com/riftctl/rift/internal/models"

// ResourceDoc is one declared resource inside a parsed TOML document:
// name/description/tags plus a raw config patch merged over the
// current (or zero) config via store.ApplyPatch.
type ResourceDoc struct {
	Name        string                 `toml:"name"`
	Description string                 `toml:"description"`
	Tags        []string               `toml:"tags"`
	Config      map[string]interface{} `toml:"config"`
}

// ResourcesToml is the parsed shape of one or more merged TOML
// documents, one array per resource kind the sync engine manages
// (spec.md §4.7 step 2's kind list, plus UserGroups and Variables from
// the same step, handled outside the generic per-Collection path since
// neither is a Resource[Config, Info]).
type ResourcesToml struct {
	ServerTemplates []ResourceDoc `toml:"server_template"`
	Servers         []ResourceDoc `toml:"server"`
	Alerters        []ResourceDoc `toml:"alerter"`
	Builders        []ResourceDoc `toml:"builder"`
	Repos           []ResourceDoc `toml:"repo"`
	Builds          []ResourceDoc `toml:"build"`
	Deployments     []ResourceDoc `toml:"deployment"`
	Stacks          []ResourceDoc `toml:"stack"`
	Procedures      []ResourceDoc `toml:"procedure"`
	Actions         []ResourceDoc `toml:"action"`
	ResourceSyncs   []ResourceDoc `toml:"resource_sync"`
	UserGroups      []ResourceDoc `toml:"user_group"`
	Variables       []ResourceDoc `toml:"variable"`
}

func (r *ResourcesToml) merge(other ResourcesToml) {
	r.ServerTemplates = append(r.ServerTemplates, other.ServerTemplates...)
	r.Servers = append(r.Servers, other.Servers...)
	r.Alerters = append(r.Alerters, other.Alerters...)
	r.Builders = append(r.Builders, other.Builders...)
	r.Repos = append(r.Repos, other.Repos...)
	r.Builds = append(r.Builds, other.Builds...)
	r.Deployments = append(r.Deployments, other.Deployments...)
	r.Stacks = append(r.Stacks, other.Stacks...)
	r.Procedures = append(r.Procedures, other.Procedures...)
	r.Actions = append(r.Actions, other.Actions...)
	r.ResourceSyncs = append(r.ResourceSyncs, other.ResourceSyncs...)
	r.UserGroups = append(r.UserGroups, other.UserGroups...)
	r.Variables = append(r.Variables, other.Variables...)
}

// PlanAction is what a ResourceDiff proposes doing to a resource.
type PlanAction string

const (
	PlanCreate PlanAction = "Create"
	PlanUpdate PlanAction = "Update"
	PlanDelete PlanAction = "Delete"
)

// ResourceDiff is one planned change, used both for push_updates_for_view
// previews and for the apply step itself (spec.md §4.7 "Diff rendering").
type ResourceDiff struct {
	Kind        models.ResourceType `json:"kind"`
	Name        string              `json:"name"`
	Action      PlanAction          `json:"action"`
	Description string              `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Current     interface{}         `json:"current,omitempty"`
	Proposed    interface{}         `json:"proposed,omitempty"`
}
