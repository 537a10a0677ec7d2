package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"go.etcd.io/bbolt"
)

// Records holds the non-Resource collections: identity, permissions,
// updates, alerts, variables and groups. These don't need a per-type
// name index the way resources do (Updates/Alerts aren't named at all;
// Users/UserGroups get theirs via nameIndexedBuckets already, and
// Variables are keyed by name directly).
type Records struct{ s *Store }

func (s *Store) Records() *Records { return &Records{s: s} }

// Now returns the store's clock, used by callers that stamp records
// outside the store package (e.g. resolving an Alert in internal/resources).
func (r *Records) Now() time.Time { return r.s.Now() }

// --- Users ---

func (r *Records) CreateUser(u models.User) (models.User, error) {
	if u.Id == "" {
		u.Id = uuid.NewString()
	}
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(nameIndexBucket(bucketUsers)))
		if existing := idx.Get([]byte(u.Username)); existing != nil {
			return rifterr.New(rifterr.KindAlreadyExists, "user %q already exists", u.Username)
		}
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketUsers)).Put([]byte(u.Id), data); err != nil {
			return err
		}
		return idx.Put([]byte(u.Username), []byte(u.Id))
	})
	return u, err
}

func (r *Records) GetUser(idOrUsername string) (models.User, error) {
	var u models.User
	var found bool
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketUsers))
		raw := b.Get([]byte(idOrUsername))
		if raw == nil {
			id := tx.Bucket([]byte(nameIndexBucket(bucketUsers))).Get([]byte(idOrUsername))
			if id == nil {
				return nil
			}
			raw = b.Get(id)
			if raw == nil {
				return nil
			}
		}
		found = true
		return json.Unmarshal(raw, &u)
	})
	if err != nil {
		return u, rifterr.Wrap(rifterr.KindStorage, err, "get user")
	}
	if !found {
		return u, rifterr.New(rifterr.KindNotFound, "user %q not found", idOrUsername)
	}
	return u, nil
}

func (r *Records) UpdateUser(u models.User) (models.User, error) {
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketUsers)).Put([]byte(u.Id), data)
	})
	return u, err
}

func (r *Records) ListUsers() ([]models.User, error) {
	var out []models.User
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketUsers)).ForEach(func(k, v []byte) error {
			var u models.User
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			out = append(out, u)
			return nil
		})
	})
	return out, err
}

// --- UserGroups ---

func (r *Records) CreateUserGroup(g models.UserGroup) (models.UserGroup, error) {
	if g.Id == "" {
		g.Id = uuid.NewString()
	}
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(nameIndexBucket(bucketUserGroups)))
		if existing := idx.Get([]byte(g.Name)); existing != nil {
			return rifterr.New(rifterr.KindAlreadyExists, "group %q already exists", g.Name)
		}
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketUserGroups)).Put([]byte(g.Id), data); err != nil {
			return err
		}
		return idx.Put([]byte(g.Name), []byte(g.Id))
	})
	return g, err
}

func (r *Records) GetUserGroup(idOrName string) (models.UserGroup, error) {
	var g models.UserGroup
	var found bool
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketUserGroups))
		raw := b.Get([]byte(idOrName))
		if raw == nil {
			id := tx.Bucket([]byte(nameIndexBucket(bucketUserGroups))).Get([]byte(idOrName))
			if id == nil {
				return nil
			}
			raw = b.Get(id)
		}
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &g)
	})
	if err != nil {
		return g, err
	}
	if !found {
		return g, rifterr.New(rifterr.KindNotFound, "user group %q not found", idOrName)
	}
	return g, nil
}

func (r *Records) ListUserGroups() ([]models.UserGroup, error) {
	var out []models.UserGroup
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketUserGroups)).ForEach(func(k, v []byte) error {
			var g models.UserGroup
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			out = append(out, g)
			return nil
		})
	})
	return out, err
}

func (r *Records) UpdateUserGroup(g models.UserGroup) (models.UserGroup, error) {
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketUserGroups)).Put([]byte(g.Id), data)
	})
	return g, err
}

func (r *Records) DeleteUserGroup(idOrName string) error {
	g, err := r.GetUserGroup(idOrName)
	if err != nil {
		return err
	}
	return r.s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(bucketUserGroups)).Delete([]byte(g.Id)); err != nil {
			return err
		}
		return tx.Bucket([]byte(nameIndexBucket(bucketUserGroups))).Delete([]byte(g.Name))
	})
}

// GroupsForUser returns every group a user belongs to, used by the
// permission gate's join over group-inherited permissions.
func (r *Records) GroupsForUser(userId string) ([]models.UserGroup, error) {
	all, err := r.ListUserGroups()
	if err != nil {
		return nil, err
	}
	var out []models.UserGroup
	for _, g := range all {
		if contains(g.UserIds, userId) {
			out = append(out, g)
		}
	}
	return out, nil
}

// --- ApiKeys ---

func (r *Records) CreateApiKey(k models.ApiKey) (models.ApiKey, error) {
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(k)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketApiKeys)).Put([]byte(k.Key), data)
	})
	return k, err
}

func (r *Records) GetApiKey(key string) (models.ApiKey, error) {
	var k models.ApiKey
	var found bool
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketApiKeys)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &k)
	})
	if err != nil {
		return k, err
	}
	if !found {
		return k, rifterr.New(rifterr.KindNotFound, "api key not found")
	}
	return k, nil
}

func (r *Records) DeleteApiKey(key string) error {
	return r.s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketApiKeys)).Delete([]byte(key))
	})
}

// --- Permissions ---

func (r *Records) UpsertPermission(p models.Permission) (models.Permission, error) {
	if p.Id == "" {
		p.Id = uuid.NewString()
	}
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketPermissions)).Put([]byte(p.Id), data)
	})
	return p, err
}

func (r *Records) ListPermissions() ([]models.Permission, error) {
	var out []models.Permission
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketPermissions)).ForEach(func(k, v []byte) error {
			var p models.Permission
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// --- Updates ---

func (r *Records) PutUpdate(u models.Update) (models.Update, error) {
	if u.Id == "" {
		u.Id = uuid.NewString()
	}
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(u)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketUpdates)).Put([]byte(u.Id), data)
	})
	return u, err
}

func (r *Records) GetUpdate(id string) (models.Update, error) {
	var u models.Update
	var found bool
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketUpdates)).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &u)
	})
	if err != nil {
		return u, err
	}
	if !found {
		return u, rifterr.New(rifterr.KindNotFound, "update %q not found", id)
	}
	return u, nil
}

func (r *Records) ListUpdates(target *models.ResourceTarget) ([]models.Update, error) {
	var out []models.Update
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketUpdates)).ForEach(func(k, v []byte) error {
			var u models.Update
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			if target != nil && u.Target != *target {
				return nil
			}
			out = append(out, u)
			return nil
		})
	})
	return out, err
}

// --- Alerts ---

func (r *Records) PutAlert(a models.Alert) (models.Alert, error) {
	if a.Id == "" {
		a.Id = uuid.NewString()
	}
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketAlerts)).Put([]byte(a.Id), data)
	})
	return a, err
}

// FindUnresolvedAlert returns the open alert for (target, variant), if any,
// enforcing the at-most-one-unresolved-alert invariant (spec.md §3,§8 #3).
func (r *Records) FindUnresolvedAlert(target models.ResourceTarget, variant models.AlertVariant) (*models.Alert, error) {
	var found *models.Alert
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketAlerts)).ForEach(func(k, v []byte) error {
			var a models.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if !a.Resolved && a.Target == target && a.Variant == variant {
				cp := a
				found = &cp
			}
			return nil
		})
	})
	return found, err
}

func (r *Records) ListAlerts(resolved *bool) ([]models.Alert, error) {
	var out []models.Alert
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketAlerts)).ForEach(func(k, v []byte) error {
			var a models.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if resolved != nil && a.Resolved != *resolved {
				return nil
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

func (r *Records) DeleteAlert(id string) error {
	return r.s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketAlerts)).Delete([]byte(id))
	})
}

// PruneAlertsOlderThan deletes every resolved alert whose Ts precedes
// cutoff, for the monitor loop's daily prune task (spec.md §4.9).
// Unresolved alerts are kept regardless of age.
func (r *Records) PruneAlertsOlderThan(cutoff time.Time) (int, error) {
	var deleted int
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketAlerts))
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var a models.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.Resolved && a.Ts.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	return deleted, err
}

// --- Stats ---

// PutStat appends one stats snapshot.
func (r *Records) PutStat(s models.Stat) (models.Stat, error) {
	if s.Id == "" {
		s.Id = uuid.NewString()
	}
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketStats)).Put([]byte(s.Id), data)
	})
	return s, err
}

// ListStats returns every retained snapshot for serverId, unordered.
func (r *Records) ListStats(serverId string) ([]models.Stat, error) {
	var out []models.Stat
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketStats)).ForEach(func(k, v []byte) error {
			var s models.Stat
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if s.ServerId == serverId {
				out = append(out, s)
			}
			return nil
		})
	})
	return out, err
}

// PruneStatsOlderThan deletes every stat snapshot whose Ts precedes
// cutoff, for the monitor loop's daily prune task.
func (r *Records) PruneStatsOlderThan(cutoff time.Time) (int, error) {
	var deleted int
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketStats))
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var s models.Stat
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			if s.Ts.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	return deleted, err
}

// --- Variables ---

func (r *Records) UpsertVariable(v models.Variable) (models.Variable, error) {
	err := r.s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketVariables)).Put([]byte(v.Name), data)
	})
	return v, err
}

func (r *Records) GetVariable(name string) (models.Variable, error) {
	var v models.Variable
	var found bool
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketVariables)).Get([]byte(name))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &v)
	})
	if err != nil {
		return v, err
	}
	if !found {
		return v, rifterr.New(rifterr.KindNotFound, "variable %q not found", name)
	}
	return v, nil
}

func (r *Records) ListVariables() ([]models.Variable, error) {
	var out []models.Variable
	err := r.s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketVariables)).ForEach(func(k, v []byte) error {
			var variable models.Variable
			if err := json.Unmarshal(v, &variable); err != nil {
				return err
			}
			out = append(out, variable)
			return nil
		})
	})
	return out, err
}

func (r *Records) DeleteVariable(name string) error {
	return r.s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketVariables)).Delete([]byte(name))
	})
}

// --- Ownership ---

func ownershipKey(t models.ResourceTarget) string {
	return string(t.Type) + ":" + t.Id
}

// SetOwner records the creator of a resource, consulted by the
// permission gate's ownership input (spec.md §3).
func (r *Records) SetOwner(target models.ResourceTarget, userId string) error {
	return r.s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketOwnership)).Put([]byte(ownershipKey(target)), []byte(userId))
	})
}

func (r *Records) GetOwner(target models.ResourceTarget) (string, bool) {
	var owner string
	_ = r.s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketOwnership)).Get([]byte(ownershipKey(target)))
		if v != nil {
			owner = string(v)
		}
		return nil
	})
	return owner, owner != ""
}

func (r *Records) ClearOwner(target models.ResourceTarget) error {
	return r.s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketOwnership)).Delete([]byte(ownershipKey(target)))
	})
}
