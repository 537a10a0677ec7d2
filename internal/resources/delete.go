package resources

import (
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// PreDelete runs spec.md §4.1's pre_delete phase before target is
// actually removed: detaching foreign references that pointed at it,
// then resolving every Alert still open against it. A failure here
// aborts the delete — the record is never touched.
func PreDelete(builds *store.Collection[models.BuildConfig, models.BuildInfo], records *store.Records, target models.ResourceTarget) error {
	if target.Type == models.ResourceTypeBuilder {
		if err := detachBuilder(builds, target.Id); err != nil {
			return rifterr.Wrap(rifterr.KindStorage, err, "detach builder %q from builds", target.Id)
		}
	}
	return resolveAlerts(records, target)
}

// detachBuilder clears builder_id on every Build pointed at builderId,
// the concrete "clearing builder_id on every Build" example spec.md
// §4.1 names.
func detachBuilder(builds *store.Collection[models.BuildConfig, models.BuildInfo], builderId string) error {
	all, err := builds.List(store.ListQuery{})
	if err != nil {
		return err
	}
	for _, b := range all {
		if b.Config.BuilderId != builderId {
			continue
		}
		b.Config.BuilderId = ""
		if _, err := builds.Update(b.Id, b.Config); err != nil {
			return err
		}
	}
	return nil
}

// resolveAlerts closes every unresolved Alert targeting target, mirroring
// spec.md §4.1's "resolving open Alerts for this target".
func resolveAlerts(records *store.Records, target models.ResourceTarget) error {
	alerts, err := records.ListAlerts(nil)
	if err != nil {
		return err
	}
	now := records.Now()
	for _, a := range alerts {
		if a.Resolved || a.Target != target {
			continue
		}
		a.Resolve(now)
		if _, err := records.PutAlert(a); err != nil {
			return err
		}
	}
	return nil
}
