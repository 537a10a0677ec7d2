package httpapi

import (
	"context"
	"net/http"

	"github.com/riftctl/rift/internal/models"
)

// Dispatcher is the slice of *dispatcher.Dispatcher this handler needs,
// declared here rather than imported so httpapi never imports
// dispatcher directly — the same consumer-declared-interface pattern
// internal/sync and internal/webhook use to avoid a cycle. Execute
// itself re-checks permission (spec.md §4.5's first step), so this
// handler doesn't duplicate that check.
type Dispatcher interface {
	TargetFor(req models.ExecuteRequest) (models.ResourceTarget, error)
	Execute(ctx context.Context, target models.ResourceTarget, req models.ExecuteRequest, user models.User) (models.Update, error)
}

type Execute struct {
	Dispatcher Dispatcher
}

func NewExecute(d Dispatcher) *Execute {
	return &Execute{Dispatcher: d}
}

func (e *Execute) Handle(w http.ResponseWriter, r *http.Request) {
	user, err := RequireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req models.ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	target, err := e.Dispatcher.TargetFor(req)
	if err != nil {
		writeError(w, err)
		return
	}

	update, err := e.Dispatcher.Execute(r.Context(), target, req, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}
