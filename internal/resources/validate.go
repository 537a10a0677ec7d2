// Package resources is the service layer store.Collection's own
// comments say belongs above it: config validation and cross-resource
// reference checks on Create/Update, and the pre_delete detach/resolve
// phase before a resource is actually removed (spec.md §4.1).
package resources

import (
	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// Lookup resolves whether a resource of the given type/id currently
// exists. httpapi.Registry satisfies this structurally, the same
// consumer-declared-interface move internal/dispatcher uses for
// ProcedureRunner/SyncRunner, so this package never imports httpapi.
type Lookup interface {
	Exists(resourceType models.ResourceType, id string) bool
}

// ref is one foreign-key reference a Config makes to another resource.
type ref struct {
	Type models.ResourceType
	Id   string
}

// refsOf spells out, per concrete Config type, which fields reference
// another resource by id. Add a case here whenever a new Config field
// is introduced that points at another resource.
func refsOf(cfg any) []ref {
	switch c := cfg.(type) {
	case models.DeploymentConfig:
		return []ref{{models.ResourceTypeServer, c.ServerId}}
	case models.RepoConfig:
		return []ref{{models.ResourceTypeServer, c.ServerId}}
	case models.BuilderConfig:
		if c.Server != nil {
			return []ref{{models.ResourceTypeServer, c.Server.ServerId}}
		}
	case models.BuildConfig:
		refs := []ref{{models.ResourceTypeRepo, c.RepoId}}
		if c.BuilderId != "" {
			refs = append(refs, ref{models.ResourceTypeBuilder, c.BuilderId})
		}
		return refs
	case models.StackConfig:
		refs := []ref{{models.ResourceTypeServer, c.ServerId}}
		if c.Source.Repo != nil {
			refs = append(refs, ref{models.ResourceTypeRepo, c.Source.Repo.RepoId})
		}
		return refs
	case models.ResourceSyncConfig:
		if c.Source.Git != nil {
			return []ref{{models.ResourceTypeRepo, c.Source.Git.RepoId}}
		}
	}
	return nil
}

// Validate checks that every resource cfg references exists and the
// caller holds Write on it — the "attached server does not exist or
// caller lacks Write on it" half of spec.md §4.1's "Config validation
// failure ... → InvalidConfig"; the struct-tag half of that check is
// store.Collection.Create/Update's job, run right after this on the
// same config.
func Validate(lookup Lookup, records *store.Records, user models.User, base auth.BaseLevels, cfg any) error {
	for _, r := range refsOf(cfg) {
		if r.Id == "" {
			continue
		}
		if !lookup.Exists(r.Type, r.Id) {
			return rifterr.New(rifterr.KindInvalidConfig, "referenced %s %q does not exist", r.Type, r.Id)
		}
		if err := auth.CheckPermission(records, user, models.NewTarget(r.Type, r.Id), models.PermissionWrite, base); err != nil {
			return rifterr.Wrap(rifterr.KindInvalidConfig, err, "caller lacks write on referenced %s %q", r.Type, r.Id)
		}
	}
	return nil
}
