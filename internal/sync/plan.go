package sync

import (
	"sort"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/resources"
	"github.com/riftctl/rift/internal/store"
)

// planKind computes the Create/Update/Delete plan for one resource kind
// against its declared document set (spec.md §4.7 step 2). Generic over
// Collection[C, I] so the same logic serves all eleven Resource[C, I]
// kinds without per-type boilerplate, matching internal/store's own
// generic Collection design.
func planKind[C any, I any](col *store.Collection[C, I], kind models.ResourceType, docs []ResourceDoc, matchTags []string, deleteMissing bool) ([]ResourceDiff, error) {
	existing, err := col.List(store.ListQuery{TagsAll: matchTags})
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.Resource[C, I], len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}

	seen := make(map[string]bool, len(docs))
	var diffs []ResourceDiff
	for _, doc := range docs {
		seen[doc.Name] = true
		if cur, ok := byName[doc.Name]; ok {
			proposed, err := store.ApplyPatch(cur.Config, doc.Config)
			if err != nil {
				return nil, err
			}
			fieldDiff, err := store.Diff(cur.Config, proposed)
			if err != nil {
				return nil, err
			}
			if len(fieldDiff) == 0 && doc.Description == cur.Description && tagsEqual(doc.Tags, cur.Tags) {
				continue
			}
			diffs = append(diffs, ResourceDiff{
				Kind: kind, Name: doc.Name, Action: PlanUpdate,
				Description: doc.Description, Tags: doc.Tags,
				Current: cur.Config, Proposed: proposed,
			})
			continue
		}
		var zero C
		proposed, err := store.ApplyPatch(zero, doc.Config)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, ResourceDiff{
			Kind: kind, Name: doc.Name, Action: PlanCreate,
			Description: doc.Description, Tags: doc.Tags,
			Proposed: proposed,
		})
	}

	if deleteMissing {
		for _, r := range existing {
			if !seen[r.Name] {
				diffs = append(diffs, ResourceDiff{Kind: kind, Name: r.Name, Action: PlanDelete, Current: r.Config})
			}
		}
	}
	return diffs, nil
}

func tagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = append([]string{}, a...), append([]string{}, b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// applyKind performs the Create/Update/Delete plan computed by planKind.
// Update applies the merged Config, then syncs tags/description in a
// second write — the store keeps these as separate mutations (spec.md
// §4.1), so a sync-driven update touches both rather than skip one.
// Deletes run the same pre_delete phase (spec.md §4.1) the httpapi Delete
// verb does, so a sync-driven removal detaches/resolves exactly like a
// manual one.
func applyKind[C any, I any](col *store.Collection[C, I], kind models.ResourceType, diffs []ResourceDiff, builds *store.Collection[models.BuildConfig, models.BuildInfo], records *store.Records) error {
	for _, d := range diffs {
		switch d.Action {
		case PlanCreate:
			cfg := d.Proposed.(C)
			if _, err := col.Create(d.Name, d.Description, d.Tags, cfg); err != nil {
				return err
			}
		case PlanUpdate:
			cfg := d.Proposed.(C)
			cur, err := col.Get(d.Name)
			if err != nil {
				return err
			}
			if _, err := col.Update(cur.Id, cfg); err != nil {
				return err
			}
			if _, err := col.UpdateTagsAndDescription(cur.Id, d.Description, d.Tags); err != nil {
				return err
			}
		case PlanDelete:
			cur, err := col.Get(d.Name)
			if err != nil {
				return err
			}
			if err := resources.PreDelete(builds, records, models.NewTarget(kind, cur.Id)); err != nil {
				return err
			}
			if _, err := col.Delete(cur.Id); err != nil {
				return err
			}
		}
	}
	return nil
}
