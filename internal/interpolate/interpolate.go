// Package interpolate resolves `[[NAME]]` references inside config
// strings against the stored Variable set (spec.md §3's Variable model:
// "referenced as [[NAME]] inside interpolated strings"). Key management
// for secret values is external (spec.md §1 Non-goals); this package
// only substitutes whatever value the store already holds.
package interpolate

import (
	"regexp"

	"github.com/riftctl/rift/internal/store"
)

var refPattern = regexp.MustCompile(`\[\[([A-Za-z0-9_]+)\]\]`)

// String replaces every `[[NAME]]` occurrence in s with the named
// variable's value. A reference to an unknown variable is left
// untouched rather than erroring — spec.md doesn't define a failure
// mode for a dangling reference, and leaving it literal makes a typo
// visible in the rendered command/log instead of aborting the whole
// operation (a documented Open Question resolution; see DESIGN.md).
func String(records *store.Records, s string) string {
	if !refPattern.MatchString(s) {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := refPattern.FindStringSubmatch(match)[1]
		v, err := records.GetVariable(name)
		if err != nil {
			return match
		}
		return v.Value
	})
}

// Map interpolates every value (not key) of an environment-style map,
// returning a new map so the stored config is never mutated in place.
func Map(records *store.Records, in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = String(records, v)
	}
	return out
}
