package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/riftctl/rift/internal/auth"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/resources"
	"github.com/riftctl/rift/internal/rifterr"
	"github.com/riftctl/rift/internal/store"
)

// writeRequest is the tagged union POST /write decodes into (spec.md
// §6): Create/Update/Delete/Rename/Retag per resource type, plus
// permission updates, variable CRUD and user-group CRUD.
type writeRequest struct {
	ResourceType models.ResourceType `json:"resource_type,omitempty"`
	Verb         string              `json:"verb"`
	Id           string              `json:"id,omitempty"`
	Name         string              `json:"name,omitempty"`
	Description  string              `json:"description,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Config       json.RawMessage     `json:"config,omitempty"`

	Permission *models.Permission `json:"permission,omitempty"`
	Variable   *models.Variable   `json:"variable,omitempty"`
	UserGroup  *models.UserGroup  `json:"user_group,omitempty"`
}

const (
	verbCreate         = "Create"
	verbUpdate         = "Update"
	verbDelete         = "Delete"
	verbRename         = "Rename"
	verbRetag          = "UpdateTagsAndDescription"
	verbCopy           = "Copy"
	verbUpsertPerm     = "UpsertPermission"
	verbUpsertVar      = "UpsertVariable"
	verbDeleteVar      = "DeleteVariable"
	verbCreateGroup    = "CreateUserGroup"
	verbUpdateGroup    = "UpdateUserGroup"
	verbDeleteGroup    = "DeleteUserGroup"
)

type Write struct {
	Registry Registry
	Records  *store.Records
	Base     auth.BaseLevels
	Builds   *store.Collection[models.BuildConfig, models.BuildInfo]
}

func NewWrite(registry Registry, records *store.Records, base auth.BaseLevels, builds *store.Collection[models.BuildConfig, models.BuildInfo]) *Write {
	return &Write{Registry: registry, Records: records, Base: base, Builds: builds}
}

func (h *Write) writeContext(user models.User) writeContext {
	return writeContext{Lookup: h.Registry, Records: h.Records, User: user, Base: h.Base}
}

func (h *Write) Handle(w http.ResponseWriter, r *http.Request) {
	user, err := RequireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req writeRequest
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

func (h *Write) requireLevel(user models.User, target models.ResourceTarget, level models.PermissionLevel) error {
	return auth.CheckPermission(h.Records, user, target, level, h.Base)
}

func (h *Write) dispatch(user models.User, req writeRequest) (interface{}, error) {
	switch req.Verb {
	case verbCreate:
		adapter, ok := h.Registry[req.ResourceType]
		if !ok {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown resource type %q", req.ResourceType)
		}
		// Creating a new resource of a type is gated on the type's base
		// level (no id exists yet to own or be granted on).
		if err := h.requireLevel(user, models.NewTarget(req.ResourceType, ""), models.PermissionWrite); err != nil {
			return nil, err
		}
		raw, err := adapter.Create(h.writeContext(user), req.Name, req.Description, req.Tags, req.Config)
		if err != nil {
			return nil, err
		}
		if err := h.Records.SetOwner(models.NewTarget(req.ResourceType, rawId(raw)), user.Id); err != nil {
			return nil, err
		}
		return raw, nil

	case verbCopy:
		adapter, ok := h.Registry[req.ResourceType]
		if !ok {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown resource type %q", req.ResourceType)
		}
		if err := h.requireLevel(user, models.NewTarget(req.ResourceType, req.Id), models.PermissionRead); err != nil {
			return nil, err
		}
		source, err := adapter.Get(req.Id)
		if err != nil {
			return nil, err
		}
		var src struct {
			Config json.RawMessage `json:"config"`
		}
		if err := json.Unmarshal(source, &src); err != nil {
			return nil, err
		}
		raw, err := adapter.Create(h.writeContext(user), req.Name, req.Description, req.Tags, src.Config)
		if err != nil {
			return nil, err
		}
		if err := h.Records.SetOwner(models.NewTarget(req.ResourceType, rawId(raw)), user.Id); err != nil {
			return nil, err
		}
		return raw, nil

	case verbUpdate, verbDelete, verbRename, verbRetag:
		adapter, ok := h.Registry[req.ResourceType]
		if !ok {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown resource type %q", req.ResourceType)
		}
		target := models.NewTarget(req.ResourceType, req.Id)
		if err := h.requireLevel(user, target, models.PermissionWrite); err != nil {
			return nil, err
		}
		switch req.Verb {
		case verbUpdate:
			return adapter.Update(h.writeContext(user), req.Id, req.Config)
		case verbDelete:
			if err := resources.PreDelete(h.Builds, h.Records, target); err != nil {
				return nil, err
			}
			raw, err := adapter.Delete(req.Id)
			if err != nil {
				return nil, err
			}
			_ = h.Records.ClearOwner(target)
			return raw, nil
		case verbRename:
			return adapter.Rename(req.Id, req.Name)
		case verbRetag:
			return adapter.Retag(req.Id, req.Description, req.Tags)
		}
		return nil, nil

	case verbUpsertPerm:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "granting permissions requires admin")
		}
		if req.Permission == nil {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "permission is required")
		}
		return h.Records.UpsertPermission(*req.Permission)

	case verbUpsertVar:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "writing variables requires admin")
		}
		if req.Variable == nil {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "variable is required")
		}
		return h.Records.UpsertVariable(*req.Variable)

	case verbDeleteVar:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "deleting variables requires admin")
		}
		return nil, h.Records.DeleteVariable(req.Name)

	case verbCreateGroup:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "managing user groups requires admin")
		}
		if req.UserGroup == nil {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "user_group is required")
		}
		return h.Records.CreateUserGroup(*req.UserGroup)

	case verbUpdateGroup:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "managing user groups requires admin")
		}
		if req.UserGroup == nil {
			return nil, rifterr.New(rifterr.KindInvalidConfig, "user_group is required")
		}
		return h.Records.UpdateUserGroup(*req.UserGroup)

	case verbDeleteGroup:
		if !user.Admin && !user.SuperAdmin {
			return nil, rifterr.New(rifterr.KindPermissionDenied, "managing user groups requires admin")
		}
		return nil, h.Records.DeleteUserGroup(req.Id)

	default:
		return nil, rifterr.New(rifterr.KindInvalidConfig, "unknown write verb %q", req.Verb)
	}
}
