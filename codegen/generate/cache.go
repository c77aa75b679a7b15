package generate

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

const cacheKeyPrefix = "svc/"

// Cache remembers the input hash each service was last generated from, so
// unchanged services are skipped on the next run. A nil *Cache is valid
// and never reports a hit.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (or creates) the cache database at dir. An empty dir
// keeps the cache in memory, which only helps within a single process.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// UpToDate reports whether service was last generated from hash. Any read
// problem counts as a miss; the worst case is a redundant regeneration.
func (c *Cache) UpToDate(service, hash string) bool {
	if c == nil {
		return false
	}
	match := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + service))
		if err != nil {
			return err
		}
		stored, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		match = string(stored) == hash
		return nil
	})
	return err == nil && match
}

// Record stores the hash service was just generated from.
func (c *Cache) Record(service, hash string) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cacheKeyPrefix+service), []byte(hash))
	})
}

// CacheEntry is one recorded service hash.
type CacheEntry struct {
	Service string
	Hash    string
}

// Entries lists every recorded service, sorted by name.
func (c *Cache) Entries() ([]CacheEntry, error) {
	if c == nil {
		return nil, nil
	}
	var entries []CacheEntry
	prefix := []byte(cacheKeyPrefix)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			hash, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, CacheEntry{
				Service: string(item.Key()[len(prefix):]),
				Hash:    string(hash),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Service < entries[j].Service })
	return entries, nil
}

// Clear drops every recorded entry.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	return c.db.DropAll()
}
