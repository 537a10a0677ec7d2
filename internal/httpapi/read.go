package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/riftctl/rift/internal/actionstate"
	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// readRequest is the tagged union POST /read decodes into (spec.md §6):
// Get*/List* for any of the eleven resource kinds, plus the fixed
// cross-cutting verbs below (GetActionState, user/group/variable/
// permission listings).
type readRequest struct {
	ResourceType models.ResourceType `json:"resource_type,omitempty"`
	Verb         string              `json:"verb"`
	IdOrName     string              `json:"id_or_name,omitempty"`
	Query        store.ListQuery     `json:"query,omitempty"`
}

const (
	verbGet         = "Get"
	verbList        = "List"
	verbActionState = "GetActionState"
	verbUser        = "GetUser"
	verbListUsers   = "ListUsers"
	verbUserGroup   = "GetUserGroup"
	verbListGroups  = "ListUserGroups"
	verbListVars    = "ListVariables"
	verbGetVar      = "GetVariable"
	verbListPerms   = "ListPermissions"
)

type Read struct {
	Registry Registry
	Records  *store.Records
	Actions  *actionstate.Registry
	Base     auth.BaseLevels
}

func NewRead(registry Registry, records *store.Records, actions *actionstate.Registry, base auth.BaseLevels) *Read {
	return &Read{Registry: registry, Records: records, Actions: actions, Base: base}
}

func (h *Read) Handle(w http.ResponseWriter, r *http.Request) {
	user, err := RequireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req readRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.dispatch(user, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type idEnvelope struct {
	Id string `json:"id"`
}

func rawId(raw json.RawMessage) string {
	var e idEnvelope
	_ = json.Unmarshal(raw, &e)
	return e.Id
}

func (h *Read) dispatch(user models.User, req readRequest) (interface{}, error) {
	switch req.Verb {
	case verbGet:
		adapter, ok := h.Registry[req.ResourceType]
		if !ok {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown resource type %q", req.ResourceType)
		}
		raw, err := adapter.Get(req.IdOrName)
		if err != nil {
			return nil, err
		}
		target := models.NewTarget(req.ResourceType, rawId(raw))
		if err := auth.CheckPermission(h.Records, user, target, models.PermissionRead, h.Base); err != nil {
			return nil, err
		}
		return raw, nil

	case verbList:
		adapter, ok := h.Registry[req.ResourceType]
		if !ok {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown resource type %q", req.ResourceType)
		}
		all, err := adapter.List(req.Query)
		if err != nil {
			return nil, err
		}
		if user.Admin || user.SuperAdmin {
			return all, nil
		}
		visible := make([]json.RawMessage, 0, len(all))
		for _, raw := range all {
			target := models.NewTarget(req.ResourceType, rawId(raw))
			level, err := auth.EffectiveLevel(h.Records, user, target, h.Base)
			if err != nil {
				return nil, err
			}
			if level >= models.PermissionRead {
				visible = append(visible, raw)
			}
		}
		return visible, nil

	case verbActionState:
		adapter, ok := h.Registry[req.ResourceType]
		if !ok {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown resource type %q", req.ResourceType)
		}
		raw, err := adapter.Get(req.IdOrName)
		if err != nil {
			return nil, err
		}
		target := models.NewTarget(req.ResourceType, rawId(raw))
		if err := auth.CheckPermission(h.Records, user, target, models.PermissionRead, h.Base); err != nil {
			return nil, err
		}
		return h.Actions.Get(target), nil

	case verbUser:
		return h.Records.GetUser(req.IdOrName)
	case verbListUsers:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "listing users requires admin")
		}
		return h.Records.ListUsers()
	case verbUserGroup:
		return h.Records.GetUserGroup(req.IdOrName)
	case verbListGroups:
		return h.Records.ListUserGroups()
	case verbListVars:
		return h.Records.ListVariables()
	case verbGetVar:
		return h.Records.GetVariable(req.IdOrName)
	case verbListPerms:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "listing permissions requires admin")
		}
		return h.Records.ListPermissions()
	default:
		return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown read verb %q", req.Verb)
	}
}
