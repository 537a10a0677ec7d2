// Package models defines the resource, identity, update and alert types
// shared by every other core package. Types here carry no behavior beyond
// small helpers; store, auth, dispatcher and friends own the logic.
package models

// ResourceType tags the kind of a ResourceTarget.
type ResourceType string

const (
	ResourceTypeSystem         ResourceType = "System"
	ResourceTypeServer         ResourceType = "Server"
	ResourceTypeDeployment     ResourceType = "Deployment"
	ResourceTypeBuild          ResourceType = "Build"
	ResourceTypeRepo           ResourceType = "Repo"
	ResourceTypeStack          ResourceType = "Stack"
	ResourceTypeProcedure      ResourceType = "Procedure"
	ResourceTypeResourceSync   ResourceType = "ResourceSync"
	ResourceTypeBuilder        ResourceType = "Builder"
	ResourceTypeAlerter        ResourceType = "Alerter"
	ResourceTypeServerTemplate ResourceType = "ServerTemplate"
	ResourceTypeAction         ResourceType = "Action"
	// ResourceTypeUserGroup and ResourceTypeVariable tag sync-engine
	// plans for the two synced kinds that aren't Resource[Config, Info]
	// (spec.md §4.7 step 2); neither is ever an Update/Permission target.
	ResourceTypeUserGroup ResourceType = "UserGroup"
	ResourceTypeVariable  ResourceType = "Variable"
)

// AllResourceTypes lists every resource kind the store and sync engine
// know how to CRUD, in sync-engine dependency order (see SPEC_FULL.md
// §4.7 step 3).
var AllResourceTypes = []ResourceType{
	ResourceTypeServerTemplate,
	ResourceTypeServer,
	ResourceTypeAlerter,
	ResourceTypeBuilder,
	ResourceTypeRepo,
	ResourceTypeBuild,
	ResourceTypeDeployment,
	ResourceTypeStack,
	ResourceTypeProcedure,
	ResourceTypeAction,
	ResourceTypeResourceSync,
}

// ResourceTarget is the tagged (type, id) pair used uniformly as the
// subject of Updates, Permissions and webhooks.
type ResourceTarget struct {
	Type ResourceType `json:"type"`
	Id   string       `json:"id"`
}

func NewTarget(t ResourceType, id string) ResourceTarget {
	return ResourceTarget{Type: t, Id: id}
}
