// Package store is the sole authority for persisted state (spec.md §5):
// every resource, Update, Alert, Permission, User, ApiKey, Variable and
// UserGroup lives in one bbolt database, one bucket per collection, with
// a secondary name-index bucket per resource type enforcing per-type
// name uniqueness (spec.md §3 "Names are unique per resource type").
//
// bbolt gives single-writer, many-reader transactions out of the box,
// which is what "the document store is the sole authority for persisted
// state" in spec.md §5 asks for without needing an external database
// process — grounded in the teacher corpus's use of bbolt as the backing
// store for cuemby-warren's raft log (go.etcd.io/bbolt), applied here as
// an embedded per-collection document store instead.
package store

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketServers         = "servers"
	bucketDeployments     = "deployments"
	bucketBuilds          = "builds"
	bucketRepos           = "repos"
	bucketStacks          = "stacks"
	bucketProcedures      = "procedures"
	bucketResourceSyncs   = "resource_syncs"
	bucketBuilders        = "builders"
	bucketAlerters        = "alerters"
	bucketServerTemplates = "server_templates"
	bucketActions         = "actions"
	bucketUsers           = "users"
	bucketApiKeys         = "api_keys"
	bucketPermissions     = "permissions"
	bucketUpdates         = "updates"
	bucketAlerts          = "alerts"
	bucketVariables       = "variables"
	bucketUserGroups      = "user_groups"
	bucketOwnership       = "ownership"
	bucketStats           = "stats"
)

var nameIndexedBuckets = []string{
	bucketServers, bucketDeployments, bucketBuilds, bucketRepos, bucketStacks,
	bucketProcedures, bucketResourceSyncs, bucketBuilders, bucketAlerters,
	bucketServerTemplates, bucketActions, bucketUsers, bucketUserGroups,
}

var plainBuckets = []string{
	bucketApiKeys, bucketPermissions, bucketUpdates, bucketAlerts, bucketVariables, bucketOwnership, bucketStats,
}

func nameIndexBucket(b string) string { return b + "__by_name" }

// Store wraps the bbolt database and the clock used for UpdatedAt stamps.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open creates/opens the bbolt file at path and initializes every bucket.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range nameIndexedBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(nameIndexBucket(b))); err != nil {
				return err
			}
		}
		for _, b := range plainBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Now returns the store's clock; tests override it to get deterministic
// timestamps instead of reaching for time.Now directly throughout.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) SetClock(f func() time.Time) { s.now = f }
