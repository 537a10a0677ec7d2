package store

import "encoding/json"

// ApplyPatch merges a partial JSON object over a stored config value and
// decodes the result back into T. The merge is field-level (shallow):
// every top-level key present in patch replaces the corresponding key in
// the marshaled base wholesale. For the enum-variant config fields
// (DeploymentImageSource, StackSource, and similar nested structs), this
// shallow replace is exactly the "replace the whole variant atomically"
// behavior spec.md §4.1 asks for, since each variant lives behind a
// single top-level field. Fields omitted from patch are left untouched.
//
// This is the Go-idiomatic rendering of the ConfigPatch design note in
// spec.md §9: rather than generating a twin "Partial" type per config via
// a derive macro, the patch travels as a raw JSON object and this single
// function does the merge for every config type in the system.
func ApplyPatch[T any](base T, patch map[string]interface{}) (T, error) {
	var zero T
	if len(patch) == 0 {
		return base, nil
	}

	baseBytes, err := json.Marshal(base)
	if err != nil {
		return zero, err
	}

	var baseMap map[string]interface{}
	if err := json.Unmarshal(baseBytes, &baseMap); err != nil {
		return zero, err
	}
	if baseMap == nil {
		baseMap = map[string]interface{}{}
	}

	for k, v := range patch {
		baseMap[k] = v
	}

	mergedBytes, err := json.Marshal(baseMap)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(mergedBytes, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Diff computes a patch that is the set of fields in candidate that
// differ from current, by comparing each top-level JSON field. This
// backs the sync engine's ConfigDiff computation (spec.md §4.7 step 2):
// "fields identical to current are removed from the diff".
func Diff[T any](current, candidate T) (map[string]interface{}, error) {
	curBytes, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	candBytes, err := json.Marshal(candidate)
	if err != nil {
		return nil, err
	}

	var curMap, candMap map[string]interface{}
	if err := json.Unmarshal(curBytes, &curMap); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candBytes, &candMap); err != nil {
		return nil, err
	}

	diff := map[string]interface{}{}
	for k, candVal := range candMap {
		curVal, existed := curMap[k]
		if !existed || !jsonEqual(curVal, candVal) {
			diff[k] = candVal
		}
	}
	return diff, nil
}

func jsonEqual(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
