package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Cache fronts a Store with an index of every key. Values under the pinned
// prefixes are held in memory once read; other values (transcripts and
// notebooks, which grow with every session) are read from the store on
// each Get. Writes go straight through to the store. All methods are safe
// for concurrent use.
type Cache struct {
	store  Store
	pinned []string

	mu     sync.RWMutex
	values map[string][]byte
	index  map[string]bool
}

// NewCache creates a Cache over store that keeps values under pinned in
// memory.
func NewCache(store Store, pinned ...string) *Cache {
	return &Cache{
		store:  store,
		pinned: pinned,
		values: make(map[string][]byte),
		index:  make(map[string]bool),
	}
}

func (c *Cache) isPinned(key string) bool {
	for _, prefix := range c.pinned {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Bootstrap indexes every key in the store and loads the pinned ones.
func (c *Cache) Bootstrap(ctx context.Context) error {
	keys, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap index: %w", err)
	}

	var toLoad []string
	c.mu.Lock()
	for _, key := range keys {
		c.index[key] = true
		if _, held := c.values[key]; !held && c.isPinned(key) {
			toLoad = append(toLoad, key)
		}
	}
	c.mu.Unlock()

	if len(toLoad) == 0 {
		return nil
	}

	entries, err := c.store.Load(ctx, toLoad...)
	if err != nil {
		return fmt.Errorf("bootstrap load: %w", err)
	}

	c.mu.Lock()
	for _, e := range entries {
		c.values[e.Key] = e.Value
	}
	c.mu.Unlock()
	return nil
}

// Get returns a copy of the value of key. Pinned values are served from
// memory; anything else is read from the store.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	val, held := c.values[key]
	c.mu.RUnlock()
	if held {
		return slices.Clone(val), nil
	}

	entries, err := c.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	val = entries[0].Value

	c.mu.Lock()
	c.index[key] = true
	if c.isPinned(key) {
		c.values[key] = slices.Clone(val)
	}
	c.mu.Unlock()
	return val, nil
}

// Put saves value under key.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := c.store.Save(ctx, Entry{Key: key, Value: value}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index[key] = true
	if c.isPinned(key) {
		c.values[key] = slices.Clone(value)
	}
	return nil
}

// Drop deletes every indexed key under prefix and returns how many were
// removed.
func (c *Cache) Drop(ctx context.Context, prefix string) (int, error) {
	keys := c.Keys(prefix)
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("drop %s: %w", prefix, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.index, key)
		delete(c.values, key)
	}
	return len(keys), nil
}

func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index[key]
}

// Keys returns the indexed keys under prefix, sorted.
func (c *Cache) Keys(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for key := range c.index {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Pinned returns copies of the in-memory entries under prefix, sorted by
// key.
func (c *Cache) Pinned(prefix string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var entries []Entry
	for key, val := range c.values {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{Key: key, Value: slices.Clone(val)})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}
