// Package cache stores fetched resources keyed by URL.
//
// A Cache has no locking of its own. The state store owns the map it wraps
// and only touches it while holding the mutation lock.
package cache

import (
	"sort"

	"pkt.systems/burrow/schema"
)

// Cache is a keyed resource store with a per-key monotonic version.
type Cache struct {
	entries map[string]schema.Resource
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]schema.Resource)}
}

// Over returns a cache backed by an existing map. Writes go to that map.
func Over(entries map[string]schema.Resource) *Cache {
	if entries == nil {
		entries = make(map[string]schema.Resource)
	}
	return &Cache{entries: entries}
}

// Get returns the resource stored for url.
func (c *Cache) Get(url string) (schema.Resource, bool) {
	res, ok := c.entries[url]
	return res, ok
}

// Version returns the stored version for url, or 0.
func (c *Cache) Version(url string) uint64 {
	return c.entries[url].Version
}

// Put stores res under res.URL. A write whose version is not greater than
// the stored version is ignored and Put returns false.
func (c *Cache) Put(res schema.Resource) bool {
	if res.URL == "" {
		return false
	}
	if existing, ok := c.entries[res.URL]; ok && res.Version <= existing.Version {
		return false
	}
	c.entries[res.URL] = res
	return true
}

// MarkPending flags url as being fetched. Version and payload are kept; a
// missing entry is created at version 0. A fetch cancelled because every
// owner let go writes nothing, so the entry stays pending at its old version
// until the next request for url. Readers should treat a pending entry that
// no tab is showing as stale, not as loading.
func (c *Cache) MarkPending(url string) schema.Resource {
	res, ok := c.entries[url]
	if !ok {
		res = schema.Resource{URL: url}
	}
	res.Status = schema.ResourcePending
	c.entries[url] = res
	return res
}

// Len returns the number of stored resources.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Keys returns stored URLs in sorted order.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
