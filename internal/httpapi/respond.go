// Package httpapi implements the coordinator's HTTP surface: /auth,
// /read, /write, /execute, /listener/<provider>/<kind>/<id>/<action> and
// /ws/update (spec.md §6), on github.com/go-chi/chi/v5 routers — the
// same router library the teacher's cmd/pulse HTTP layer is built on.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/riftctl/rift/internal/rifterr"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("httpapi: encoding response")
	}
}

type errorBody struct {
	Kind    rifterr.Kind `json:"kind"`
	Message string       `json:"message"`
}

// writeError maps a core error to its HTTP status via rifterr's Kind
// taxonomy (spec.md §6's "kind of core error maps to an HTTP status").
func writeError(w http.ResponseWriter, err error) {
	var rerr *rifterr.Error
	if errors.As(err, &rerr) {
		writeJSON(w, rerr.HTTPStatus(), errorBody{Kind: rerr.Kind, Message: rerr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Kind: rifterr.KindInternal, Message: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return rifterr.Wrap(rifterr.KindInvalidConfig, err, "decoding request body")
	}
	return nil
}
