package sync

import (
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/store"
)

// planUserGroups and planVariables mirror planKind for the two synced
// kinds that live in store.Records rather than a generic
// Resource[Config, Info] Collection (spec.md §4.7 step 2's kind list
// includes both alongside the eleven Resource kinds).

func planUserGroups(records *store.Records, docs []ResourceDoc, deleteMissing bool) ([]ResourceDiff, error) {
	existing, err := records.ListUserGroups()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.UserGroup, len(existing))
	for _, g := range existing {
		byName[g.Name] = g
	}

	seen := make(map[string]bool, len(docs))
	var diffs []ResourceDiff
	for _, doc := range docs {
		seen[doc.Name] = true
		userIds := toStringSlice(doc.Config["user_ids"])
		if cur, ok := byName[doc.Name]; ok {
			if tagsEqual(userIds, cur.UserIds) {
				continue
			}
			diffs = append(diffs, ResourceDiff{
				Kind: models.ResourceTypeUserGroup, Name: doc.Name, Action: PlanUpdate,
				Current: cur.UserIds, Proposed: userIds,
			})
			continue
		}
		diffs = append(diffs, ResourceDiff{Kind: models.ResourceTypeUserGroup, Name: doc.Name, Action: PlanCreate, Proposed: userIds})
	}
	if deleteMissing {
		for _, g := range existing {
			if !seen[g.Name] {
				diffs = append(diffs, ResourceDiff{Kind: models.ResourceTypeUserGroup, Name: g.Name, Action: PlanDelete, Current: g.UserIds})
			}
		}
	}
	return diffs, nil
}

func applyUserGroups(records *store.Records, diffs []ResourceDiff) error {
	for _, d := range diffs {
		switch d.Action {
		case PlanCreate:
			if _, err := records.CreateUserGroup(models.UserGroup{Name: d.Name, UserIds: toStringSlice(d.Proposed)}); err != nil {
				return err
			}
		case PlanUpdate:
			cur, err := records.GetUserGroup(d.Name)
			if err != nil {
				return err
			}
			cur.UserIds = toStringSlice(d.Proposed)
			if _, err := records.UpdateUserGroup(cur); err != nil {
				return err
			}
		case PlanDelete:
			if err := records.DeleteUserGroup(d.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func planVariables(records *store.Records, docs []ResourceDoc, deleteMissing bool) ([]ResourceDiff, error) {
	existing, err := records.ListVariables()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.Variable, len(existing))
	for _, v := range existing {
		byName[v.Name] = v
	}

	seen := make(map[string]bool, len(docs))
	var diffs []ResourceDiff
	for _, doc := range docs {
		seen[doc.Name] = true
		value, _ := doc.Config["value"].(string)
		if cur, ok := byName[doc.Name]; ok {
			if cur.Value == value && cur.Description == doc.Description {
				continue
			}
			diffs = append(diffs, ResourceDiff{
				Kind: models.ResourceTypeVariable, Name: doc.Name, Action: PlanUpdate,
				Description: doc.Description, Current: cur.Value, Proposed: value,
			})
			continue
		}
		diffs = append(diffs, ResourceDiff{Kind: models.ResourceTypeVariable, Name: doc.Name, Action: PlanCreate, Description: doc.Description, Proposed: value})
	}
	if deleteMissing {
		for _, v := range existing {
			if !seen[v.Name] {
				diffs = append(diffs, ResourceDiff{Kind: models.ResourceTypeVariable, Name: v.Name, Action: PlanDelete, Current: v.Value})
			}
		}
	}
	return diffs, nil
}

func applyVariables(records *store.Records, diffs []ResourceDiff) error {
	for _, d := range diffs {
		switch d.Action {
		case PlanCreate, PlanUpdate:
			value, _ := d.Proposed.(string)
			if _, err := records.UpsertVariable(models.Variable{Name: d.Name, Value: value, Description: d.Description}); err != nil {
				return err
			}
		case PlanDelete:
			if err := records.DeleteVariable(d.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// toStringSlice normalizes a TOML-decoded value into []string: go-toml/v2
// unmarshals []string targets into map[string]interface{} fields that
// are themselves assigned interface{} typed []interface{}, so Config
// (a raw map[string]interface{}) needs this conversion rather than a
// direct type assertion.
func toStringSlice(v interface{}) []string {
	if s, ok := v.([]string); ok {
		return s
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
