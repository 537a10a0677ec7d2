package httpapi

import (
	"encoding/json"

	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/resources"
	"github.com/riftctl/rift/internal/store"
)

// writeContext carries what a Create/Update call needs to run
// resources.Validate before persisting: existence/permission checks on
// every resource the decoded config references (spec.md §4.1).
type writeContext struct {
	Lookup  resources.Lookup
	Records *store.Records
	User    models.User
	Base    auth.BaseLevels
}

// resourceAPI erases one Collection[C, I]'s type parameters behind a
// JSON-in/JSON-out interface so /read and /write can dispatch on a
// runtime models.ResourceType value instead of needing one hand-written
// handler per resource kind — the same generic-erasure move
// internal/sync's planKind[C, I]/applyKind[C, I] make to serve all
// eleven resource kinds from one pair of functions.
type resourceAPI interface {
	Get(idOrName string) (json.RawMessage, error)
	List(q store.ListQuery) ([]json.RawMessage, error)
	Create(wc writeContext, name, description string, tags []string, configJSON json.RawMessage) (json.RawMessage, error)
	Update(wc writeContext, id string, configJSON json.RawMessage) (json.RawMessage, error)
	Rename(id, newName string) (json.RawMessage, error)
	Retag(id, description string, tags []string) (json.RawMessage, error)
	Delete(id string) (json.RawMessage, error)
}

type collectionAdapter[C any, I any] struct {
	coll *store.Collection[C, I]
}

func adapt[C any, I any](coll *store.Collection[C, I]) resourceAPI {
	return collectionAdapter[C, I]{coll: coll}
}

func (a collectionAdapter[C, I]) Get(idOrName string) (json.RawMessage, error) {
	r, err := a.coll.Get(idOrName)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (a collectionAdapter[C, I]) List(q store.ListQuery) ([]json.RawMessage, error) {
	rs, err := a.coll.List(q)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(rs))
	for i, r := range rs {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func (a collectionAdapter[C, I]) Create(wc writeContext, name, description string, tags []string, configJSON json.RawMessage) (json.RawMessage, error) {
	var cfg C
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, err
		}
	}
	if err := resources.Validate(wc.Lookup, wc.Records, wc.User, wc.Base, cfg); err != nil {
		return nil, err
	}
	r, err := a.coll.Create(name, description, tags, cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (a collectionAdapter[C, I]) Update(wc writeContext, id string, configJSON json.RawMessage) (json.RawMessage, error) {
	var cfg C
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, err
		}
	}
	if err := resources.Validate(wc.Lookup, wc.Records, wc.User, wc.Base, cfg); err != nil {
		return nil, err
	}
	r, err := a.coll.Update(id, cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (a collectionAdapter[C, I]) Rename(id, newName string) (json.RawMessage, error) {
	r, err := a.coll.Rename(id, newName)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (a collectionAdapter[C, I]) Retag(id, description string, tags []string) (json.RawMessage, error) {
	r, err := a.coll.UpdateTagsAndDescription(id, description, tags)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (a collectionAdapter[C, I]) Delete(id string) (json.RawMessage, error) {
	r, err := a.coll.Delete(id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// Registry maps every resource kind that's a plain Resource[Config,
// Info] to its erased adapter. Built once at wiring time (cmd/riftd)
// from the same *store.Collection instances the dispatcher/sync engine
// share.
type Registry map[models.ResourceType]resourceAPI

// Exists satisfies resources.Lookup so internal/resources' reference
// checks can resolve a config's foreign ids without importing httpapi.
func (reg Registry) Exists(resourceType models.ResourceType, id string) bool {
	adapter, ok := reg[resourceType]
	if !ok {
		return false
	}
	_, err := adapter.Get(id)
	return err == nil
}

// NewRegistry builds the full eleven-kind registry from the collections
// every other engine in this process already holds.
func NewRegistry(
	servers *store.Collection[models.ServerConfig, models.ServerInfo],
	deployments *store.Collection[models.DeploymentConfig, models.DeploymentInfo],
	builds *store.Collection[models.BuildConfig, models.BuildInfo],
	repos *store.Collection[models.RepoConfig, models.RepoInfo],
	stacks *store.Collection[models.StackConfig, models.StackInfo],
	procedures *store.Collection[models.ProcedureConfig, models.ProcedureInfo],
	resourceSyncs *store.Collection[models.ResourceSyncConfig, models.ResourceSyncInfo],
	builders *store.Collection[models.BuilderConfig, models.BuilderInfo],
	alerters *store.Collection[models.AlerterConfig, models.AlerterInfo],
	serverTemplates *store.Collection[models.ServerTemplateConfig, models.ServerTemplateInfo],
	actions *store.Collection[models.ActionConfig, models.ActionInfo],
) Registry {
	return Registry{
		models.ResourceTypeServer:         adapt(servers),
		models.ResourceTypeDeployment:     adapt(deployments),
		models.ResourceTypeBuild:          adapt(builds),
		models.ResourceTypeRepo:           adapt(repos),
		models.ResourceTypeStack:          adapt(stacks),
		models.ResourceTypeProcedure:      adapt(procedures),
		models.ResourceTypeResourceSync:   adapt(resourceSyncs),
		models.ResourceTypeBuilder:        adapt(builders),
		models.ResourceTypeAlerter:        adapt(alerters),
		models.ResourceTypeServerTemplate: adapt(serverTemplates),
		models.ResourceTypeAction:         adapt(actions),
	}
}
