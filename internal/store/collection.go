package store

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/riftctl/rift/internal/models"
	"github.com/riftctl/rift/internal/rifterr"
	"go.etcd.io/bbolt"
)

var validate = validator.New()

// Collection is raw typed CRUD over one name-indexed bucket. It enforces
// id lookup, name uniqueness, tag-set storage and a config's own
// struct-tag validation; it knows nothing about cross-resource reference
// checks or delete side effects — those belong to the service layer in
// internal/resources, which is what spec.md §4.1 calls "config
// validation failure" (the "attached server does not exist" half) and
// "pre_delete/post_delete" policy.
type Collection[C any, I any] struct {
	store  *Store
	bucket string
}

func NewCollection[C any, I any](s *Store, bucket string) *Collection[C, I] {
	return &Collection[C, I]{store: s, bucket: bucket}
}

type ListQuery struct {
	Ids     []string
	Names   []string
	TagsAll []string // resource must carry every tag listed
	TagsAny []string // resource must carry at least one tag listed
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !contains(have, w) {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}

func (q ListQuery) matches(id, name string, tags []string) bool {
	if len(q.Ids) > 0 && !contains(q.Ids, id) {
		return false
	}
	if len(q.Names) > 0 && !contains(q.Names, name) {
		return false
	}
	if !containsAll(tags, q.TagsAll) {
		return false
	}
	if !containsAny(tags, q.TagsAny) {
		return false
	}
	return true
}

// envelope is the on-disk shape: a Resource whose Config/Info are kept as
// raw JSON so List can filter by id/name/tags without decoding every
// concrete config type.
type envelope struct {
	Id          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	UpdatedAt   string          `json:"updated_at"`
	Config      json.RawMessage `json:"config"`
	Info        json.RawMessage `json:"info"`
}

func toEnvelope(r models.Resource[json.RawMessage, json.RawMessage]) envelope {
	return envelope{
		Id: r.Id, Name: r.Name, Description: r.Description, Tags: r.Tags,
		UpdatedAt: r.UpdatedAt.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Config: r.Config, Info: r.Info,
	}
}

func decodeTyped[C any, I any](e envelope) (models.Resource[C, I], error) {
	var out models.Resource[C, I]
	out.Id, out.Name, out.Description, out.Tags = e.Id, e.Name, e.Description, e.Tags
	if len(e.Config) > 0 {
		if err := json.Unmarshal(e.Config, &out.Config); err != nil {
			return out, err
		}
	}
	if len(e.Info) > 0 {
		if err := json.Unmarshal(e.Info, &out.Info); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Create inserts a new resource, failing AlreadyExists on a name clash.
func (c *Collection[C, I]) Create(name, description string, tags []string, config C) (models.Resource[C, I], error) {
	var zero models.Resource[C, I]
	if err := validate.Struct(config); err != nil {
		return zero, rifterr.Wrap(rifterr.KindInvalidConfig, err, "%s config validation failed", c.bucket)
	}
	id := uuid.NewString()
	configBytes, err := json.Marshal(config)
	if err != nil {
		return zero, rifterr.Wrap(rifterr.KindInternal, err, "marshal config")
	}
	var info I
	infoBytes, _ := json.Marshal(info)

	err = c.store.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(nameIndexBucket(c.bucket)))
		if existing := idx.Get([]byte(name)); existing != nil {
			return rifterr.New(rifterr.KindAlreadyExists, "%s named %q already exists", c.bucket, name)
		}
		b := tx.Bucket([]byte(c.bucket))
		env := envelope{Id: id, Name: name, Description: description, Tags: tags,
			UpdatedAt: c.store.Now().Format("2006-01-02T15:04:05.999999999Z07:00"),
			Config: configBytes, Info: infoBytes}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}
		return idx.Put([]byte(name), []byte(id))
	})
	if err != nil {
		return zero, err
	}
	return c.Get(id)
}

// Get fetches a resource by id, or by name if id doesn't match a key.
func (c *Collection[C, I]) Get(idOrName string) (models.Resource[C, I], error) {
	var zero models.Resource[C, I]
	var env envelope
	var found bool
	err := c.store.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		raw := b.Get([]byte(idOrName))
		if raw == nil {
			idx := tx.Bucket([]byte(nameIndexBucket(c.bucket)))
			id := idx.Get([]byte(idOrName))
			if id == nil {
				return nil
			}
			raw = b.Get(id)
			if raw == nil {
				return nil
			}
		}
		found = true
		return json.Unmarshal(raw, &env)
	})
	if err != nil {
		return zero, rifterr.Wrap(rifterr.KindStorage, err, "get %s", idOrName)
	}
	if !found {
		return zero, rifterr.New(rifterr.KindNotFound, "%s %q not found", c.bucket, idOrName)
	}
	return decodeTyped[C, I](env)
}

// Update replaces config (already merged by the caller) and bumps
// UpdatedAt. Info is left untouched; use UpdateInfo for the
// runtime-maintained cache.
func (c *Collection[C, I]) Update(id string, config C) (models.Resource[C, I], error) {
	if err := validate.Struct(config); err != nil {
		var zero models.Resource[C, I]
		return zero, rifterr.Wrap(rifterr.KindInvalidConfig, err, "%s config validation failed", c.bucket)
	}
	return c.mutate(id, func(env *envelope) error {
		b, err := json.Marshal(config)
		if err != nil {
			return err
		}
		env.Config = b
		return nil
	})
}

// UpdateInfo overwrites the runtime-maintained Info cache only.
func (c *Collection[C, I]) UpdateInfo(id string, info I) (models.Resource[C, I], error) {
	return c.mutate(id, func(env *envelope) error {
		b, err := json.Marshal(info)
		if err != nil {
			return err
		}
		env.Info = b
		return nil
	})
}

// UpdateTagsAndDescription is used by the sync engine when only
// description/tags changed and the config diff itself is empty.
func (c *Collection[C, I]) UpdateTagsAndDescription(id, description string, tags []string) (models.Resource[C, I], error) {
	return c.mutate(id, func(env *envelope) error {
		env.Description = description
		env.Tags = tags
		return nil
	})
}

func (c *Collection[C, I]) mutate(id string, f func(env *envelope) error) (models.Resource[C, I], error) {
	var zero models.Resource[C, I]
	var out envelope
	err := c.store.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		raw := b.Get([]byte(id))
		if raw == nil {
			return rifterr.New(rifterr.KindNotFound, "%s %q not found", c.bucket, id)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if err := f(&env); err != nil {
			return err
		}
		env.UpdatedAt = c.store.Now().Format("2006-01-02T15:04:05.999999999Z07:00")
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		out = env
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return zero, err
	}
	return decodeTyped[C, I](out)
}

// Rename changes a resource's name, failing AlreadyExists on clash.
func (c *Collection[C, I]) Rename(id, newName string) (models.Resource[C, I], error) {
	var zero models.Resource[C, I]
	var out envelope
	err := c.store.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		idx := tx.Bucket([]byte(nameIndexBucket(c.bucket)))
		raw := b.Get([]byte(id))
		if raw == nil {
			return rifterr.New(rifterr.KindNotFound, "%s %q not found", c.bucket, id)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if existing := idx.Get([]byte(newName)); existing != nil && string(existing) != id {
			return rifterr.New(rifterr.KindAlreadyExists, "%s named %q already exists", c.bucket, newName)
		}
		if err := idx.Delete([]byte(env.Name)); err != nil {
			return err
		}
		env.Name = newName
		env.UpdatedAt = c.store.Now().Format("2006-01-02T15:04:05.999999999Z07:00")
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}
		out = env
		return idx.Put([]byte(newName), []byte(id))
	})
	if err != nil {
		return zero, err
	}
	return decodeTyped[C, I](out)
}

// Delete removes the record and its name-index entry. Pre/post delete
// side effects (detaching foreign references, cache eviction) are the
// service layer's job (spec.md §4.1); this only does the record removal
// in the middle of that sequence.
func (c *Collection[C, I]) Delete(id string) (models.Resource[C, I], error) {
	existing, err := c.Get(id)
	if err != nil {
		return existing, err
	}
	err = c.store.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		idx := tx.Bucket([]byte(nameIndexBucket(c.bucket)))
		if err := idx.Delete([]byte(existing.Name)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return existing, rifterr.Wrap(rifterr.KindStorage, err, "delete %s", id)
	}
	return existing, nil
}

// List returns every resource matching query, decoded to the typed form.
func (c *Collection[C, I]) List(q ListQuery) ([]models.Resource[C, I], error) {
	var out []models.Resource[C, I]
	err := c.store.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.bucket))
		return b.ForEach(func(k, v []byte) error {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			if !q.matches(env.Id, env.Name, env.Tags) {
				return nil
			}
			r, err := decodeTyped[C, I](env)
			if err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, rifterr.Wrap(rifterr.KindStorage, err, "list %s", c.bucket)
	}
	return out, nil
}
