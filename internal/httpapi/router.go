package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riftctl/rift/internal/updatelog"
)

// NewRouter assembles the coordinator's full HTTP surface (spec.md §6)
// on a chi router: /auth, /read, /write, /execute, the webhook listener
// and the update websocket. auth is wired as middleware ahead of every
// route so handlers can call RequireUser unconditionally; /auth itself
// tolerates an absent or invalid token (its four public verbs don't
// need one).
func NewRouter(auth *Auth, read *Read, write *Write, execute *Execute, listener *Listener, hub *updatelog.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware)

	r.Post("/auth", auth.Handle)
	r.Post("/read", read.Handle)
	r.Post("/write", write.Handle)
	r.Post("/execute", execute.Handle)
	r.Post("/listener/{provider}/{kind}/{id}/{action}", listener.Handle)
	r.Get("/ws/update", hub.HandleWebSocket)

	return r
}
