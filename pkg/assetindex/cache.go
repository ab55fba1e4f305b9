package assetindex

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketMeta = []byte("meta_cache")

// Cache is an on-disk scan cache backed by bbolt: one bucket keyed by
// absolute path, storing the file's mtime/size alongside its parsed
// AssetMetaData so a re-scan can skip re-reading and re-parsing files that
// haven't changed since the last scan.
type Cache struct {
	db *bolt.DB
}

type cacheRecord struct {
	ModTime int64         `json:"mod_time"` // UnixNano
	Size    int64         `json:"size"`
	Meta    AssetMetaData `json:"meta"`
}

// OpenCache opens (creating if needed) the bbolt-backed cache at path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("assetindex: open cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("assetindex: create cache bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying bbolt database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached AssetMetaData for path if its stored mtime and
// size match the ones the caller just stat'd, i.e. the file hasn't changed
// since it was cached.
func (c *Cache) Lookup(path string, modTime time.Time, size int64) (AssetMetaData, bool) {
	var rec cacheRecord
	var found bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		raw := b.Get([]byte(path))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found || rec.ModTime != modTime.UnixNano() || rec.Size != size {
		return AssetMetaData{}, false
	}
	return rec.Meta, true
}

// Store records path's current mtime/size and parsed metadata.
func (c *Cache) Store(path string, modTime time.Time, size int64, meta AssetMetaData) {
	rec := cacheRecord{ModTime: modTime.UnixNano(), Size: size, Meta: meta}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		return b.Put([]byte(path), raw)
	})
}
