package objstore

import (
	"context"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketBlobs = []byte("blobs")

// CachedStore wraps a remote Store with a local bbolt-backed blob cache,
// grounded on the same bucket-per-kind layout the cluster state store
// uses for its BoltDB backend. Repeated Gets of the same oid — common
// across clean re-runs and merge's three-way fetch of overlapping
// parameters — are served from disk instead of re-hitting the remote.
type CachedStore struct {
	remote Store
	db     *bolt.DB
}

// NewCachedStore opens (creating if needed) a bbolt cache file at
// cachePath and wraps remote with it.
func NewCachedStore(remote Store, cachePath string) (*CachedStore, error) {
	if err := ensureParentDir(cachePath); err != nil {
		return nil, err
	}
	db, err := bolt.Open(cachePath, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &CachedStore{remote: remote, db: db}, nil
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Close releases the underlying bbolt handle.
func (s *CachedStore) Close() error { return s.db.Close() }

// Put writes through to the remote, then primes the local cache with the
// returned oid so an immediate Get (e.g. the hash-verification step in
// smudge) never round-trips.
func (s *CachedStore) Put(ctx context.Context, data []byte) (string, error) {
	oid, err := s.remote.Put(ctx, data)
	if err != nil {
		return "", err
	}
	_ = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(oid), data)
	})
	return oid, nil
}

// Get checks the local cache first, falling back to the remote and
// populating the cache on a miss.
func (s *CachedStore) Get(ctx context.Context, oid string) ([]byte, error) {
	var cached []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketBlobs).Get([]byte(oid)); v != nil {
			cached = append([]byte(nil), v...)
		}
		return nil
	})
	if cached != nil {
		return cached, nil
	}
	data, err := s.remote.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	_ = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(oid), data)
	})
	return data, nil
}

// Push delegates to the remote; the cache has no notion of remotes.
func (s *CachedStore) Push(ctx context.Context, oids []string, remote string) error {
	return s.remote.Push(ctx, oids, remote)
}
