// Package actionstate implements the per-resource busy-flag registry
// from spec.md §4.3: at most one in-flight operation per resource,
// enforced with a mutex-guarded flag set per target rather than a
// database lock, since this state is transient and never persisted.
package actionstate

import (
	"sync"

	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
)

// Registry tracks one ActionState per ResourceTarget, created lazily on
// first use and dropped back to idle (and out of the map) when its
// guard is released.
type Registry struct {
	mu    sync.Mutex
	state map[models.ResourceTarget]*models.ActionState
}

func NewRegistry() *Registry {
	return &Registry{state: make(map[models.ResourceTarget]*models.ActionState)}
}

// Guard holds one resource's action state busy until Release is called.
// Release is idempotent and safe to call via defer, including on the
// panic-unwind path, since it only ever resets its own target's flags.
type Guard struct {
	registry *Registry
	target   models.ResourceTarget
	done     bool
}

// Release resets the guarded resource back to idle. Safe to call more
// than once; only the first call has effect.
func (g *Guard) Release() {
	if g == nil || g.done {
		return
	}
	g.done = true
	g.registry.release(g.target)
}

// Acquire sets the flag named by set on target's ActionState, failing
// Busy if any flag (the same one or a different one) is already set.
// set must mutate exactly one field to true; it receives the zero state
// to start from.
func (r *Registry) Acquire(target models.ResourceTarget, set func(*models.ActionState)) (*Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.state[target]
	if ok && !cur.IsIdle() {
		return nil, rifterr.New(rifterr.KindBusy, "%s:%s is busy (%s)", target.Type, target.Id, cur.ActiveFlag())
	}

	next := models.ActionState{}
	set(&next)
	r.state[target] = &next

	return &Guard{registry: r, target: target}, nil
}

// Get returns the current ActionState for target; idle if never touched
// or not currently guarded.
func (r *Registry) Get(target models.ResourceTarget) models.ActionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.state[target]; ok {
		return *s
	}
	return models.ActionState{}
}

// Len returns the number of resources currently holding a guard.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state)
}

func (r *Registry) release(target models.ResourceTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, target)
}
