// Package registry keeps the durable index of containers: id mapped to
// the filesystem paths, cgroup path and pid needed for teardown, stop
// and list. It is consumed by the lifecycle core, not part of it.
package registry

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aropet/bantubox/errdefs"
)

var bucketContainers = []byte("containers")

// Record is the persisted per-container entry.
type Record struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Command   []string  `json:"command"`
	Pid       int       `json:"pid,omitempty"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`

	// RootDir is the per-container directory holding the overlay layers.
	RootDir string `json:"rootDir"`
	// CgroupPaths are the per-controller sub-group directories.
	CgroupPaths map[string]string `json:"cgroupPaths,omitempty"`
}

// Registry is a bbolt backed container index.
type Registry struct {
	db *bolt.DB
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Registry, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketContainers)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: failed to init %s: %w", path, err)
	}
	return &Registry{db: db}, nil
}

// Close releases the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Register stores or overwrites the record under its id.
func (r *Registry) Register(rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: failed to encode %s: %w", rec.ID, err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Put([]byte(rec.ID), buf)
	})
}

// Lookup returns the record for the given id.
func (r *Registry) Lookup(id string) (Record, error) {
	var rec Record
	err := r.db.View(func(tx *bolt.Tx) error {
		buf := tx.Bucket(bucketContainers).Get([]byte(id))
		if buf == nil {
			return errdefs.Wrapf(errdefs.ErrNotFound, nil, "registry: no container %s", id)
		}
		return json.Unmarshal(buf, &rec)
	})
	return rec, err
}

// Remove deletes the record for the given id. Removing an unknown id
// is not an error.
func (r *Registry) Remove(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).Delete([]byte(id))
	})
}

// List returns all records in key order.
func (r *Registry) List() ([]Record, error) {
	var out []Record
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
