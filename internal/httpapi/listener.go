package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/riftctl/rift/internal/webhook"
)

// Listener backs POST /listener/<provider>/<kind>/<id>/<action>
// (spec.md §4.8, §6). provider is accepted but unused beyond routing —
// signature verification and kind/action translation are entirely
// generic, matching internal/webhook.Bridge's own provider-agnostic
// design.
type Listener struct {
	Bridge *webhook.Bridge
}

func NewListener(bridge *webhook.Bridge) *Listener {
	return &Listener{Bridge: bridge}
}

func (h *Listener) Handle(w http.ResponseWriter, r *http.Request) {
	kind := webhook.Kind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Hub-Signature-256")
	update, err := h.Bridge.Handle(r.Context(), kind, id, action, body, signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, update)
}
